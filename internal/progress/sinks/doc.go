// Package sinks provides progress.Sink implementations: webhook delivery,
// structured logs, Prometheus metrics, Pub/Sub fan-out, result documents and
// the notes archive.
package sinks
