// Package model defines the provider-agnostic abstractions for interacting
// with language models from the runner.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers live in sub-packages (gemini, openai, anthropic) so higher layers
// remain decoupled from vendor SDKs.
package model
