// Package metrics instruments the Conversation Runtime's step loop with
// Prometheus counters, histograms, and gauges, and offers a
// QueryService for reading them back. Grounded on the teacher's
// pkg/agent/middleware/metrics (Recorder interface, Prometheus/no-op
// implementations) and pkg/metrics/query.go (Prometheus HTTP API
// client for retrospective queries), generalized from the teacher's
// story/agent-state labels to this runtime's conv_id/persona labels.
package metrics

import "time"

// Recorder is the instrumentation seam pkg/httpapi drives after every
// agent step it streams.
type Recorder interface {
	// ObserveStep records one agent step: its token usage, duration,
	// and whether it ended the heartbeat chain.
	ObserveStep(convID, persona string, promptTokens, completionTokens int, heartbeat bool, duration time.Duration)
	// SetMemoryPressure reports the working context's current
	// fullness, as current_tokens/ctx_window, in [0, 1].
	SetMemoryPressure(convID string, ratio float64)
	// IncFunctionFailure counts a rejected or failed function call.
	IncFunctionFailure(convID, function string)
}

// NoopRecorder discards every observation. Used when no Prometheus
// registry is configured (e.g. most tests).
type NoopRecorder struct{}

// Nop returns a Recorder that does nothing.
func Nop() Recorder { return NoopRecorder{} }

func (NoopRecorder) ObserveStep(string, string, int, int, bool, time.Duration) {}
func (NoopRecorder) SetMemoryPressure(string, float64)                        {}
func (NoopRecorder) IncFunctionFailure(string, string)                        {}
