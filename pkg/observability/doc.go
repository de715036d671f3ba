/*
Package observability provides tools for monitoring Arbor interpreters.

It turns lifecycle hooks into Prometheus metrics and structured log records, fans
several hook sets out from a single interpreter option, and merges the snapshot
streams of many interpreters into one channel.
*/
package observability
