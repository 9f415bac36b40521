// Package config provides configuration management for the LLM worker.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development; provider
// credentials are not part of it and are looked up by the model router.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
package config
