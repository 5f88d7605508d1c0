package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWakeSignalRemembersPendingSet(t *testing.T) {
	s := NewWakeSignal()

	// Raised before anyone waits: the next wait returns immediately.
	s.Set()
	select {
	case <-s.C():
	default:
		t.Fatal("pending signal lost")
	}
}

func TestWakeSignalCoalesces(t *testing.T) {
	s := NewWakeSignal()

	assert.NotPanics(t, func() {
		for i := 0; i < 100; i++ {
			s.Set()
		}
	})

	// Many sets collapse into one pending signal.
	<-s.C()
	select {
	case <-s.C():
		t.Fatal("signal did not coalesce")
	default:
	}
}
