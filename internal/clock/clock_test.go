package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())

	f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), f.Now())

	later := start.Add(24 * time.Hour)
	f.Set(later)
	assert.Equal(t, later, f.Now())
}

func TestRealIsUTC(t *testing.T) {
	now := Real().Now()
	assert.Equal(t, time.UTC, now.Location())
}
