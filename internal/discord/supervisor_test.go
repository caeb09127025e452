package discord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(1*time.Second))
	assert.Equal(t, 64*time.Second, nextBackoff(32*time.Second))
	assert.Equal(t, maxBackoff, nextBackoff(90*time.Second))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff))
}

func TestWithJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := withJitter(10 * time.Second)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}

func TestSupervisorInitialState(t *testing.T) {
	s := NewSupervisor(NewClient("token"), NewRest("token"), func(Event) error { return nil })
	assert.Equal(t, StateDisconnected, s.State())
}
