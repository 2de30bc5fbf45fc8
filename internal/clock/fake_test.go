package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-timer.C:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-timer.C:
		assert.Equal(t, epoch.Add(5*time.Second), got)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Zero(t, c.PendingCount())
	assert.False(t, timer.Stop())
}

func TestFakeTimerZeroDuration(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(0)
	assert.Equal(t, epoch, <-timer.C)
	assert.Zero(t, c.PendingCount())
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(time.Second)
	assert.Equal(t, 1, c.PendingCount())

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Zero(t, c.PendingCount())

	c.Advance(time.Minute)
	select {
	case <-timer.C:
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	go func() { c.NewTimer(time.Second) }()
	go func() { c.NewTimer(2 * time.Second) }()

	c.WaitForTimers(2)
	assert.Equal(t, 2, c.PendingCount())
}

func TestRealClockImplementsClock(t *testing.T) {
	var _ Clock = Real()
	var _ Clock = Fake(epoch)

	timer := Real().NewTimer(time.Hour)
	assert.True(t, timer.Stop())
}
