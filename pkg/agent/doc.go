// Package agent builds LLM clients for the pipeline stages.
//
// A client is resolved from a model name to its provider adapter (under internal/llmimpl)
// and wrapped in the middleware chain:
//
//	metrics -> empty-response logging -> timeout -> provider
//
// Provider API keys come from the encrypted secrets file, then the environment.
package agent
