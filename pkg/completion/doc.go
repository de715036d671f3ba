// Package completion binds a ports.CompletionService to statechart invocations.
//
// Bind turns a provider into a domain.Service usable as an invoke source. Cached wraps a
// provider with a CompletionCache. Scripted is a deterministic provider that replays
// canned responses, used by tests, examples and the CLI.
package completion
