// Package metrics records job outcomes. Sinks like PromSink export them to
// Prometheus; NopSink discards them.
package metrics

import "time"

// JobObservation is what the runner reports for each finished job.
type JobObservation struct {
	// State is the terminal job state ("SUCCESS" or "FAILURE")
	State     string
	Duration  time.Duration
	Usages    int64
	Unmatched int64
}

// Sink receives job observations.
type Sink interface {
	RecordJob(obs JobObservation) error
}

// NopSink drops every observation.
type NopSink struct{}

// RecordJob implements Sink.
func (NopSink) RecordJob(JobObservation) error { return nil }

var _ Sink = NopSink{}
