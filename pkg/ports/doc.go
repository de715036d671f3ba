/*
Package ports defines the driven ports (interfaces) of the arbor runtime.

The runtime never talks to a language model provider directly: a CompletionService is
injected by the embedding application and bound to invocations through pkg/completion.

# Key Interfaces

  - CompletionService: One chat completion round trip (messages and tools in, message out).
  - CompletionCache: Stores completion responses keyed by a request fingerprint.
  - DistributedLocker: Serializes identical completion requests across replicas.
*/
package ports
