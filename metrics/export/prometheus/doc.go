// Package prometheus exposes goSession engine metrics through client_golang.
//
// [Collector] reads [goSession.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so nothing is double-counted and the engine keeps its
// lock-free counters. [Handler] serves a dedicated registry over promhttp.
package prometheus
