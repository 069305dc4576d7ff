package communication

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Buffer collects the events emitted by one transaction. The events are
// published only if the transaction commits.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(ev Event) { b.events = append(b.events, ev) }

func (b *Buffer) Events() []Event { return b.events }

// Notification is the envelope delivered to off-chain observers.
type Notification struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Height  int64     `json:"height"`
	TxHash  string    `json:"tx_hash"`
	Time    time.Time `json:"time"`
	Payload Event     `json:"payload"`
}

func NewNotification(ev Event, height int64, txHash string, at time.Time) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Type:    ev.EventType(),
		Height:  height,
		TxHash:  txHash,
		Time:    at.UTC(),
		Payload: ev,
	}
}

// Notifier delivers committed notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var combined error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Type
	}
	return out
}

// Attribute is one flattened event field.
type Attribute struct {
	Key   string
	Value string
}

// Attributes flattens an event into key-sorted string attributes, the shape
// consensus engines index events by.
func Attributes(ev Event) ([]Attribute, error) {
	bz, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", ev.EventType())
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bz, &fields); err != nil {
		return nil, errors.Wrapf(err, "flatten %s", ev.EventType())
	}
	attrs := make([]Attribute, 0, len(fields))
	for k, raw := range fields {
		v := string(raw)
		var s string
		if json.Unmarshal(raw, &s) == nil {
			v = s
		}
		attrs = append(attrs, Attribute{Key: k, Value: strings.TrimSpace(v)})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs, nil
}
