/*
Package runner drives an interpreter from an event stream.

It is the bridge between a running statechart and the outside world: events are read
from an EventSource (plain text lines or JSON lines), sent to the interpreter one at a
time, and every snapshot and signal is reported to an Observer.

# Key Components

  - Runner: reads events until the source is exhausted or the machine terminates.
  - TextSource: one event per line, "TYPE [payload]".
  - JSONSource: one event per line, {"type": ..., "payload": ...}.
  - JSONObserver: writes snapshots and signals as JSON lines.

# Usage

	r := runner.NewRunner(
		runner.WithSource(runner.NewTextSource(os.Stdin)),
		runner.WithObserver(tracer),
		runner.WithWait(10*time.Second),
	)

	snap, err := r.Run(ctx, interpreter)
*/
package runner
