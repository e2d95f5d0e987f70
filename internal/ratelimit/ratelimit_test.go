package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRegistrationRulesDenyFourthAttempt(t *testing.T) {
	l := New(RegistrationRules()...)

	for i := 0; i < 3; i++ {
		d := l.CheckAndRecord("1.2.3.4", epoch.Add(time.Duration(i)*time.Minute))
		require.True(t, d.Allowed, "attempt %d", i+1)
	}

	d := l.CheckAndRecord("1.2.3.4", epoch.Add(10*time.Minute))
	assert.False(t, d.Allowed)
	assert.Equal(t, "too many registration attempts", d.Reason)
	assert.Equal(t, 50*time.Minute, d.RetryAfter)

	// Denied checks are not recorded.
	assert.Len(t, l.Snapshot()["1.2.3.4"], 3)

	other := l.CheckAndRecord("5.6.7.8", epoch.Add(10*time.Minute))
	assert.True(t, other.Allowed)
}

func TestRegistrationWindowSlides(t *testing.T) {
	l := New(RegistrationRules()...)
	for i := 0; i < 3; i++ {
		l.CheckAndRecord("ip", epoch.Add(time.Duration(i)*20*time.Minute))
	}

	// First attempt (t=0) ages out at t=60m.
	assert.False(t, l.Check("ip", epoch.Add(59*time.Minute)).Allowed)
	assert.True(t, l.Check("ip", epoch.Add(60*time.Minute)).Allowed)
}

func TestVerificationMinuteWindowReportsRemainingSeconds(t *testing.T) {
	l := New(VerificationRules()...)

	l.Record("ip", epoch)
	d := l.Check("ip", epoch.Add(10*time.Second))

	assert.False(t, d.Allowed)
	assert.Equal(t, "verification code requested too recently", d.Reason)
	assert.Equal(t, 50*time.Second, d.RetryAfter)
}

func TestVerificationHourAndDayWindows(t *testing.T) {
	l := New(VerificationRules()...)

	for i := 0; i < 6; i++ {
		l.Record("ip", epoch.Add(time.Duration(i)*2*time.Minute))
	}
	d := l.Check("ip", epoch.Add(15*time.Minute))
	assert.False(t, d.Allowed)
	assert.Equal(t, "hourly verification code limit reached", d.Reason)
	assert.Equal(t, 45*time.Minute, d.RetryAfter)

	for i := 0; i < 6; i++ {
		l.Record("ip", epoch.Add(2*time.Hour+time.Duration(i)*2*time.Minute))
	}
	d = l.Check("ip", epoch.Add(4*time.Hour))
	assert.False(t, d.Allowed)
	assert.Equal(t, "daily verification code limit reached", d.Reason)
	assert.Equal(t, 20*time.Hour, d.RetryAfter)

	assert.True(t, l.Check("ip", epoch.Add(24*time.Hour)).Allowed)
}

func TestReservationCountsWhileInFlight(t *testing.T) {
	l := New(VerificationRules()...)

	res, d := l.Reserve("ip", epoch)
	require.True(t, d.Allowed)
	require.NotNil(t, res)

	_, d = l.Reserve("ip", epoch.Add(time.Second))
	assert.False(t, d.Allowed)

	res.Cancel()
	assert.Empty(t, l.Snapshot())

	res, d = l.Reserve("ip", epoch.Add(2*time.Second))
	require.True(t, d.Allowed)
	res.Commit()
	res.Commit()

	assert.Equal(t, []time.Time{epoch.Add(2 * time.Second)}, l.Snapshot()["ip"])
	assert.False(t, l.Check("ip", epoch.Add(3*time.Second)).Allowed)
}

func TestPruneDropsEventsPastHorizon(t *testing.T) {
	l := New(VerificationRules()...)
	l.Record("old", epoch)
	l.Record("new", epoch.Add(23*time.Hour))

	assert.False(t, l.Prune(epoch.Add(time.Hour)))
	assert.True(t, l.Prune(epoch.Add(24*time.Hour)))

	snap := l.Snapshot()
	assert.NotContains(t, snap, "old")
	assert.Contains(t, snap, "new")
}

func TestRestoreSortsEvents(t *testing.T) {
	l := New(RegistrationRules()...)
	l.Restore(map[string][]time.Time{
		"ip":    {epoch.Add(2 * time.Minute), epoch, epoch.Add(time.Minute)},
		"empty": nil,
	})

	snap := l.Snapshot()
	assert.Equal(t, []time.Time{epoch, epoch.Add(time.Minute), epoch.Add(2 * time.Minute)}, snap["ip"])
	assert.NotContains(t, snap, "empty")
	assert.False(t, l.Check("ip", epoch.Add(5*time.Minute)).Allowed)
}
