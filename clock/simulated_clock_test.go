package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var referenceTime = time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)

func assertReceivesTime(t *testing.T, ch <-chan time.Time, expected time.Time, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		assert.True(t, expected.Equal(got), "got %v, want %v", got, expected)
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for tick, want %v", expected)
	}
}

func assertNotReceivesTime(t *testing.T, ch <-chan time.Time, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("expected no tick, got %v", got)
	case <-time.After(timeout):
	}
}

func TestSimulatedClockNow(t *testing.T) {
	sc := NewSimulatedClock(referenceTime)
	assert.True(t, referenceTime.Equal(sc.Now()))

	sc.SetTime(referenceTime.Add(time.Hour))
	assert.True(t, referenceTime.Add(time.Hour).Equal(sc.Now()))
}

func TestSimulatedClockAfterFiresOnAdvance(t *testing.T) {
	sc := NewSimulatedClock(referenceTime)
	ch := sc.After(10 * time.Millisecond)

	assertNotReceivesTime(t, ch, 5*time.Millisecond)

	sc.AdvanceTime(10 * time.Millisecond)
	assertReceivesTime(t, ch, referenceTime.Add(10*time.Millisecond), 5*time.Millisecond)
}

func TestSimulatedClockAfterNonPositiveFiresImmediately(t *testing.T) {
	sc := NewSimulatedClock(referenceTime)
	ch := sc.After(0)
	assertReceivesTime(t, ch, referenceTime, 5*time.Millisecond)
}

func TestSimulatedClockAdvancePastMultipleDeadlines(t *testing.T) {
	sc := NewSimulatedClock(referenceTime)
	early := sc.After(5 * time.Millisecond)
	late := sc.After(20 * time.Millisecond)

	sc.AdvanceTime(10 * time.Millisecond)
	assertReceivesTime(t, early, referenceTime.Add(5*time.Millisecond), 5*time.Millisecond)
	assertNotReceivesTime(t, late, 5*time.Millisecond)

	sc.AdvanceTime(15 * time.Millisecond)
	assertReceivesTime(t, late, referenceTime.Add(20*time.Millisecond), 5*time.Millisecond)
}
