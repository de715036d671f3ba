/*
Package dsl provides a Go DSL for programmatically constructing Arbor machines.

It allows developers to define statecharts with a type-safe, fluent builder instead of
relying on external YAML or JSON documents. Guards, actions and services are plain Go
values, so no registry is needed.

Example usage:

	package main

	import (
		"github.com/aretw0/arbor/pkg/domain"
		"github.com/aretw0/arbor/pkg/dsl"
	)

	func main() {
		b := dsl.New("assistant").Context("turns", 0)

		b.Add("idle").On("ASK", "thinking")

		b.Add("thinking").
			Invoke(callModel).
			OnDone(domain.To("idle").Do(domain.Set("answered", true))).
			Error("failed").
			End()

		b.Add("failed").Terminal()

		machine := b.MustBuild()
		// ... pass machine to arbor.New(...)
	}
*/
package dsl
