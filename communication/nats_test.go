package communication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNATS(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSPublisher(t *testing.T) {
	srv := runNATS(t)
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	pub := NewNATSPublisher(conn, "")
	assert.Equal(t, DefaultSubjectPrefix+"."+EventPaymentReleased, pub.Subject(EventPaymentReleased))

	sub, err := conn.SubscribeSync(DefaultSubjectPrefix + ".>")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	n := NewNotification(PaymentReleased{Job: testAddr(1), Agent: testAddr(2), Amount: 600}, 5, "ABCD", time.Now())
	require.NoError(t, pub.Notify(context.Background(), n))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pub.Flush(ctx))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectPrefix+"."+EventPaymentReleased, msg.Subject)

	var got struct {
		ID      string `json:"id"`
		Height  int64  `json:"height"`
		Payload struct {
			Amount uint64 `json:"amount"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, int64(5), got.Height)
	assert.Equal(t, uint64(600), got.Payload.Amount)
}

func TestNATSPublisherClosedConnection(t *testing.T) {
	srv := runNATS(t)
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	conn.Close()

	err = NewNATSPublisher(conn, "custom").Notify(context.Background(), NewNotification(JobCompleted{}, 1, "", time.Now()))
	assert.Error(t, err)
}
