// Package mock provides test doubles for LLM providers.
//
// MockModel implements the langchaingo llms.Model interface and reports token
// usage under every key the real adapters read, so it can stand in for any
// provider. MockFactory hands out clients wrapping a MockModel and records
// which targets were requested.
package mock
