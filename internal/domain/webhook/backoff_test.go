package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
}

func TestNextAttempt(t *testing.T) {
	tests := []struct {
		failed    int
		wantDelay time.Duration
		wantMore  bool
	}{
		{failed: 0, wantDelay: 2 * time.Second, wantMore: true},
		{failed: 1, wantDelay: 4 * time.Second, wantMore: true},
		{failed: 2, wantDelay: 8 * time.Second, wantMore: true},
		{failed: 3, wantMore: false},
	}
	for _, tt := range tests {
		delay, more := NextAttempt(tt.failed)
		assert.Equal(t, tt.wantMore, more, "failed=%d", tt.failed)
		assert.Equal(t, tt.wantDelay, delay, "failed=%d", tt.failed)
	}
}
