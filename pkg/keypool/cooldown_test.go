package keypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownScheduler(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewCooldownScheduler(newPool(t, 1), "sometimes", testLogger())
		assert.Error(t, err)
	})

	t.Run("tick resets exhausted keys", func(t *testing.T) {
		p := newPool(t, 2)
		s, err := NewCooldownScheduler(p, "", testLogger())
		require.NoError(t, err)

		p.MarkExhausted()
		require.Equal(t, 1, p.AvailableCount())

		s.Tick()
		assert.Equal(t, 2, p.AvailableCount())
	})

	t.Run("start and stop are idempotent", func(t *testing.T) {
		s, err := NewCooldownScheduler(newPool(t, 1), "@every 1h", testLogger())
		require.NoError(t, err)

		s.Start()
		s.Start()
		s.Stop()
		s.Stop()
	})
}
