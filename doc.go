/*
Package arbor is a statechart runtime for multi-step, LLM-driven agent workflows.

Workflows are hierarchical and parallel state machines. States invoke asynchronous
services (a model call, a tool) bound to their lifetime, assign a shared context,
emit side-channel signals and spawn child machines that run as independent actors.

# Concept

A machine is a validated tree of states (pkg/domain). It is built in Go with the
fluent builder of pkg/dsl, or compiled from a YAML or JSON document with Parse, where
guards, actions and services are referred to by the names registered in a
pkg/registry.Registry. An Interpreter runs one instance of a machine: events are
processed one at a time on its own goroutine, and every stable configuration is
published as a domain.Snapshot.

# Key Features

  - Run-to-completion semantics with eventless transitions and internal events.
  - Parallel regions that complete once every region reached a final state.
  - Invocations cancelled on exit; late results are discarded.
  - Child actors with event forwarding, signal relay and done/error notifications.
  - Faults in guards or actions discard the microstep and stop the instance.

# Usage

	m := dsl.New("assistant")
	m.Add("idle").On("ASK", "thinking")
	m.Add("thinking").
		Invoke(completion.Bind(provider, completion.WithResult(completion.Content))).
		OnDone(domain.To("answered").Do(saveAnswer)).
		Error("idle").
		End()
	m.Add("answered").Terminal()

	i := arbor.New(m.MustBuild(), nil, arbor.WithLogger(logger))
	defer i.Stop()

	if _, err := i.Start(ctx); err != nil {
		log.Fatal(err)
	}
	i.On("*", func(ctx context.Context, sig domain.Signal) { log.Println(sig.Type) })
	snap, err := i.Send(ctx, domain.NewEvent("ASK", "summarize the release notes"))
*/
package arbor
