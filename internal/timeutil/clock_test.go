package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNow(t *testing.T) {
	t.Parallel()

	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestMockClockAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(750 * time.Millisecond)
	assert.Equal(t, start.Add(750*time.Millisecond), c.Now())
	assert.Equal(t, 750*time.Millisecond, c.Since(start))
}

func TestMockClockSet(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	target := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}
