package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCommit_ObserveOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCommit(reg)

	c.ObserveOutcome("committed", "", time.Second)
	c.ObserveOutcome("rejected", "mismatch", time.Millisecond)
	c.ObserveOutcome("rejected", "mismatch", time.Millisecond)
	c.SetGuardHeld(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("committed", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.outcomes.WithLabelValues("rejected", "mismatch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.guardHeld))
}

func TestCommit_NilIsNoop(t *testing.T) {
	var c *Commit
	assert.NotPanics(t, func() {
		c.ObserveOutcome("committed", "", time.Second)
		c.SetGuardHeld(1)
	})
}
