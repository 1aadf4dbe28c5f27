package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignals_PublishCoalescesToLatest(t *testing.T) {
	s := NewSignals()
	defer s.Close()

	// Nobody is consuming; later publishes replace the pending event.
	s.Publish(&Identity{ID: "u1"})
	s.Publish(&Identity{ID: "u2"})
	s.Publish(&Identity{ID: "u3"})

	ev := <-s.Changes()
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "u3", ev.Identity.ID, "only the latest state is delivered")

	current, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u3", current.ID)
}

func TestSignals_SignOutBehindBurstStillDelivered(t *testing.T) {
	s := NewSignals()
	defer s.Close()

	s.Publish(&Identity{ID: "u1"})
	s.Publish(&Identity{ID: "u1", Email: "refresh@example.com"})
	require.NoError(t, s.SignOut(context.Background()))

	ev := <-s.Changes()
	assert.Nil(t, ev.Identity, "the sign-out is the event that arrives, never a stale sign-in")

	current, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSignals_PublishAfterCloseIsDropped(t *testing.T) {
	s := NewSignals()
	s.Publish(&Identity{ID: "u1"})
	s.Close()

	assert.NotPanics(t, func() {
		s.Publish(&Identity{ID: "u2"})
	})
	s.Close()
}
