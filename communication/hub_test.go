package communication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4, nil)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, h.Subscribers())

	n := NewNotification(DisputeRaised{Job: testAddr(1)}, 3, "", time.Now())
	require.NoError(t, h.Notify(context.Background(), n))
	assert.Equal(t, n.ID, (<-a).ID)
	assert.Equal(t, n.ID, (<-b).ID)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(1, nil)
	ch, cancel := h.Subscribe()
	defer cancel()

	first := NewNotification(JobCompleted{}, 1, "", time.Now())
	second := NewNotification(JobCompleted{}, 2, "", time.Now())
	require.NoError(t, h.Notify(context.Background(), first))
	require.NoError(t, h.Notify(context.Background(), second))

	assert.Equal(t, first.ID, (<-ch).ID)
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %s", n.ID)
	default:
	}
}
