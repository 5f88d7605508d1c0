package pgmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToSecondsRoundsUp(t *testing.T) {
	// Sub-second timeouts must never truncate to zero: a zero vt would
	// make the message instantly redeliverable while the handler runs.
	assert.Equal(t, 1, toSeconds(100*time.Millisecond))
	assert.Equal(t, 1, toSeconds(time.Second))
	assert.Equal(t, 2, toSeconds(1500*time.Millisecond))
	assert.Equal(t, 30, toSeconds(30*time.Second))
}
