package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchlab-data/launchlab/internal/timeutil"
)

func newTestController() (*LifecycleController, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewLifecycleController(LifecycleConfig{DeadmanTimeout: 2 * time.Second}, clock)
	return c, clock
}

func healthyInputs() LifecycleInputs {
	return LifecycleInputs{CaptureValid: true, RSObservable: true}
}

// advanceTo drives a healthy controller from idle into the given state.
func advanceTo(t *testing.T, c *LifecycleController, clock *timeutil.MockClock, target LifecycleState) {
	t.Helper()
	step := func(in LifecycleInputs) {
		clock.Advance(4 * time.Millisecond)
		rec := c.Update(in)
		require.Nil(t, rec)
	}

	in := healthyInputs()
	in.Eligible = true
	step(in)
	require.Equal(t, LifecyclePreImpact, c.State())
	if target == LifecyclePreImpact {
		return
	}

	in = healthyInputs()
	in.ImpactObserved = true
	step(in)
	require.Equal(t, LifecycleImpactObserved, c.State())
	if target == LifecycleImpactObserved {
		return
	}

	in = healthyInputs()
	in.SeparationConfirmed = true
	step(in)
	require.Equal(t, LifecyclePostImpact, c.State())
	require.Equal(t, LifecyclePostImpact, target)
}

func TestLifecycleHappyPathRequiresUpstreamConfirmation(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePostImpact)

	// Without the upstream confirmation flag the controller never
	// finalizes on its own; it sits in post_impact until the deadman
	// refuses the attempt.
	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		require.Nil(t, c.Update(healthyInputs()))
		require.Equal(t, LifecyclePostImpact, c.State())
	}

	clock.Advance(2 * time.Second)
	rec := c.Update(healthyInputs())
	require.NotNil(t, rec)
	assert.True(t, rec.Refused)
	assert.Equal(t, RefusalLifecycleTimeout, rec.RefusalReason)
	assert.Equal(t, LifecycleRefused, rec.FinalState)
}

func TestLifecycleFinalizesWithUpstreamConfirmation(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePostImpact)

	in := healthyInputs()
	in.UpstreamConfirmed = true
	rec := c.Update(in)
	require.NotNil(t, rec)
	assert.False(t, rec.Refused)
	assert.Equal(t, LifecycleShotFinalized, rec.FinalState)
	assert.Equal(t, uint64(1), rec.ShotID)
	require.NotNil(t, rec.ImpactTimestamp)
	assert.False(t, rec.StartTimestamp.After(*rec.ImpactTimestamp))
	assert.False(t, rec.ImpactTimestamp.After(rec.EndTimestamp))
}

func TestLifecycleFailsClosedOnCaptureInvalid(t *testing.T) {
	t.Parallel()

	states := []LifecycleState{LifecyclePreImpact, LifecycleImpactObserved, LifecyclePostImpact}
	for _, state := range states {
		state := state
		t.Run(string(state), func(t *testing.T) {
			t.Parallel()

			c, clock := newTestController()
			advanceTo(t, c, clock, state)

			// Capture invalid overrides everything else, even a
			// would-be confirmation.
			in := LifecycleInputs{
				CaptureValid:        false,
				RSObservable:        true,
				ImpactObserved:      true,
				SeparationConfirmed: true,
				UpstreamConfirmed:   true,
			}
			rec := c.Update(in)
			require.NotNil(t, rec)
			assert.True(t, rec.Refused)
			assert.Equal(t, RefusalCaptureInvalid, rec.RefusalReason)
			assert.Equal(t, LifecycleRefused, c.State())
		})
	}
}

func TestLifecycleFailsClosedOnRSNotObservable(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecycleImpactObserved)

	in := healthyInputs()
	in.RSObservable = false
	rec := c.Update(in)
	require.NotNil(t, rec)
	assert.Equal(t, RefusalRSNotObservable, rec.RefusalReason)
}

func TestLifecycleDeadmanForcesRefusal(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePreImpact)

	// Repeated no-progress updates inside the timeout are fine.
	for i := 0; i < 4; i++ {
		clock.Advance(400 * time.Millisecond)
		require.Nil(t, c.Update(healthyInputs()))
	}

	clock.Advance(3 * time.Second)
	rec := c.Update(healthyInputs())
	require.NotNil(t, rec)
	assert.Equal(t, RefusalLifecycleTimeout, rec.RefusalReason)
}

func TestLifecycleDeadmanResetsOnTransition(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePreImpact)

	clock.Advance(1900 * time.Millisecond)
	in := healthyInputs()
	in.ImpactObserved = true
	require.Nil(t, c.Update(in))
	require.Equal(t, LifecycleImpactObserved, c.State())

	// The transition restarted the deadman window.
	clock.Advance(1900 * time.Millisecond)
	require.Nil(t, c.Update(healthyInputs()))
	require.Equal(t, LifecycleImpactObserved, c.State())
}

func TestLifecycleExplicitRefusalShortCircuits(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePreImpact)

	reason := RefusalForcedOverride
	in := healthyInputs()
	in.ExplicitRefusal = &reason
	rec := c.Update(in)
	require.NotNil(t, rec)
	assert.Equal(t, RefusalForcedOverride, rec.RefusalReason)
}

func TestLifecycleTerminalHoldsUntilQuietThenIncrementsShotID(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecyclePreImpact)

	in := healthyInputs()
	in.CaptureValid = false
	rec := c.Update(in)
	require.NotNil(t, rec)
	firstID := rec.ShotID

	// Terminal state holds through busy frames, emitting nothing.
	for i := 0; i < 5; i++ {
		assert.Nil(t, c.Update(healthyInputs()))
		assert.Equal(t, LifecycleRefused, c.State())
	}

	quiet := healthyInputs()
	quiet.Quiet = true
	assert.Nil(t, c.Update(quiet))
	assert.Equal(t, LifecycleIdle, c.State())

	advanceTo(t, c, clock, LifecyclePostImpact)
	in = healthyInputs()
	in.UpstreamConfirmed = true
	rec = c.Update(in)
	require.NotNil(t, rec)
	assert.Equal(t, firstID+1, rec.ShotID)
	assert.Empty(t, string(rec.RefusalReason))
}

func TestLifecycleIdleIgnoresGateFailures(t *testing.T) {
	t.Parallel()

	c, _ := newTestController()

	// Invalid capture while idle never creates a refused record; it just
	// blocks attempts from starting.
	in := LifecycleInputs{Eligible: true, CaptureValid: false, RSObservable: true}
	assert.Nil(t, c.Update(in))
	assert.Equal(t, LifecycleIdle, c.State())
	assert.Equal(t, uint64(0), c.ShotID())
}

func TestLifecycleOneRecordPerLifecycle(t *testing.T) {
	t.Parallel()

	c, clock := newTestController()
	advanceTo(t, c, clock, LifecycleImpactObserved)

	in := healthyInputs()
	in.RSObservable = false
	records := 0
	for i := 0; i < 10; i++ {
		if c.Update(in) != nil {
			records++
		}
	}
	assert.Equal(t, 1, records)
}
