// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside agentchat.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Speak the OpenAI chat shape (message.Message with function_call / tool_calls)
//   - Keep request/response shapes minimal and transport independent
//   - Offer decorators for response caching (memory, Redis) and rate limiting
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, OpenAI-compatible endpoints) implement the
// Model interface in sub-packages so agents stay decoupled from vendor SDKs.
package model
