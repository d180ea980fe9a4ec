package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvances(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewManual(start)
	assert.Equal(t, start, c.Now())

	c.Advance(61 * time.Second)
	assert.Equal(t, start.Add(61*time.Second), c.Now())
}

func TestFixedIsUTC(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	c := NewFixed(time.Date(2026, 3, 1, 10, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, c.Now().Location())
}
