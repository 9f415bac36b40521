// Package router maps logical model names to concrete LLM providers.
//
// A Registry is the static, read-only table of supported models. It is built
// once at startup, either from the built-in defaults or from a YAML file, and
// handed to a Router explicitly:
//
//	registry, err := router.LoadRegistry("models.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := router.NewRouter(registry, logger)
//
//	target, err := r.Resolve("chatgpt")
//	switch {
//	case errors.Is(err, router.ErrUnknownModel):
//	    // not in the registry
//	case errors.Is(err, router.ErrMissingCredential):
//	    // mapped, but the provider key is not set in the environment
//	}
//	fmt.Println(target.ProviderID()) // openai/gpt-4o
//
// Credentials are read from the environment on every resolution, so a missing
// key fails the task before any provider call is attempted.
//
// Registry file format:
//
//	models:
//	  - name: chatgpt
//	    display_name: GPT-4o
//	    provider: openai
//	    provider_model: gpt-4o
//	    credential_env: OPENAI_API_KEY
//	    max_output_tokens: 4096
//	    input_cost_per_mtok: 2.5
//	    output_cost_per_mtok: 10
package router
