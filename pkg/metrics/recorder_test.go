package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNoopRecorderDoesNotPanic(t *testing.T) {
	r := Nop()
	r.ObserveStep("conv-1", "sam", 10, 20, true, 5*time.Millisecond)
	r.SetMemoryPressure("conv-1", 0.5)
	r.IncFunctionFailure("conv-1", "send_message")
}

func TestPrometheusRecorderObserveStep(t *testing.T) {
	r := NewPrometheusRecorder()
	r.ObserveStep("conv-1", "sam", 10, 20, true, 5*time.Millisecond)
	r.ObserveStep("conv-1", "sam", 5, 7, false, 2*time.Millisecond)

	count := testutil.ToFloat64(r.stepsTotal.WithLabelValues("conv-1", "sam", "true"))
	assert.Equal(t, float64(1), count)

	failCount := 0.0
	r.IncFunctionFailure("conv-1", "send_message")
	failCount = testutil.ToFloat64(r.functionFailure.WithLabelValues("conv-1", "send_message"))
	assert.Equal(t, float64(1), failCount)
}
