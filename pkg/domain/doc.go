/*
Package domain contains the statechart model executed by the arbor runtime.

It defines the static definition of a machine (a tree of Nodes with their Transitions,
Actions and Invokes), the values threaded through execution (Context, Event, Signal) and
the observable result of execution (Snapshot). The package is kept pure: it performs no
I/O and starts no goroutines.

# Key Entities

  - Node: one state of the tree. Atomic, Compound, Parallel or Final.
  - Transition: event descriptor, optional guard, ordered actions, target paths.
  - Action: a tagged variant (assign, emit, raise, spawn, send_to, forward, stop_child, do).
  - Invoke: an asynchronous Service bound to the lifetime of one state activation.
  - Machine: an indexed and validated Node tree, reusable across many interpreters.
  - Snapshot: configuration, context and status of one running instance.

Machines are built once with NewMachine (or pkg/dsl, or a YAML/JSON document through the
root package) and are immutable afterwards.
*/
package domain
