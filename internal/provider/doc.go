// Package provider resolves "provider/model" strings to Eino chat models.
//
// Three hosted providers are supported through eino-ext: Anthropic (claude),
// OpenAI and OpenAI-compatible servers (openai) and Volcengine ARK (ark).
// Each builds its chat models lazily, one per model ID, and caches them.
//
// The scripted provider answers from a YAML scenario and never touches the
// network. It is used for offline runs and tests:
//
//	models: [default]
//	settings:
//	  chunk_size: 2
//	fallback: "OK"
//	responses:
//	  - match: {contains: "hello"}
//	    response: "Hi there"
//	tool_rules:
//	  - match: {contains: "timer"}
//	    tool: timer
//	    arguments: {seconds: 60}
//	    after: "Timer started."
//
// InitializeProviders builds a Registry from the loaded configuration.
package provider
