package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
)

func TestAllowEnforcesBurstPerKey(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := PerMinute(60, 3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	clk.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := PerMinute(100, 100, time.Minute, clk)

	l.Allow("a")
	clk.Advance(30 * time.Second)
	l.Allow("b")
	clk.Advance(45 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}
