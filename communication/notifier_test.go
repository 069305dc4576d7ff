package communication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/agent-protocol/core"
)

func testAddr(b byte) core.Address {
	var a core.Address
	a[0] = b
	return a
}

func TestNewNotification(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	n := NewNotification(JobCancelled{Job: testAddr(1), Client: testAddr(2), Refund: 7}, 12, "ABCD", at)

	_, err := uuid.Parse(n.ID)
	require.NoError(t, err)
	assert.Equal(t, EventJobCancelled, n.Type)
	assert.Equal(t, int64(12), n.Height)
	assert.Equal(t, time.UTC, n.Time.Location())

	bz, err := json.Marshal(n)
	require.NoError(t, err)
	var decoded struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(bz, &decoded))
	assert.Equal(t, EventJobCancelled, decoded.Type)
	assert.Equal(t, testAddr(1).String(), decoded.Payload["job"])
	assert.EqualValues(t, 7, decoded.Payload["refund"])
}

func TestBuffer(t *testing.T) {
	var b Buffer
	assert.Empty(t, b.Events())
	b.Emit(DisputeRaised{Job: testAddr(1)})
	b.Emit(JobCompleted{Job: testAddr(1)})
	require.Len(t, b.Events(), 2)
	assert.Equal(t, EventDisputeRaised, b.Events()[0].EventType())
	assert.Equal(t, EventJobCompleted, b.Events()[1].EventType())
}

func TestMultiJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi{
		rec,
		nil,
		NotifierFunc(func(context.Context, Notification) error { return boom }),
		rec,
	}
	err := m.Notify(context.Background(), NewNotification(AgentRated{Score: 3}, 1, "", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{EventAgentRated, EventAgentRated}, rec.Types())
}

func TestAttributes(t *testing.T) {
	at := int64(99)
	attrs, err := Attributes(JobCreated{
		Job:           testAddr(1),
		Client:        testAddr(2),
		Agent:         testAddr(3),
		Escrow:        1000,
		AutoReleaseAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, []Attribute{
		{Key: "agent", Value: testAddr(3).String()},
		{Key: "auto_release_at", Value: "99"},
		{Key: "client", Value: testAddr(2).String()},
		{Key: "escrow", Value: "1000"},
		{Key: "job", Value: testAddr(1).String()},
	}, attrs)

	attrs, err = Attributes(PaymentReleased{Amount: 5, AutoReleased: true})
	require.NoError(t, err)
	assert.Contains(t, attrs, Attribute{Key: "auto_released", Value: "true"})
}
