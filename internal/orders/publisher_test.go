package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memOutbox struct {
	events    []*OutboxEvent
	published []int64
	fetchErr  error
}

func (m *memOutbox) GetUnpublishedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*OutboxEvent
	for _, e := range m.events {
		if !m.isPublished(e.ID) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) isPublished(id int64) bool {
	for _, p := range m.published {
		if p == id {
			return true
		}
	}
	return false
}

func (m *memOutbox) MarkEventPublished(_ context.Context, id int64) error {
	m.published = append(m.published, id)
	return nil
}

type recordingWriter struct {
	msgs   []kafka.Message
	failOn int // 1-based call number that fails, 0 never
	calls  int
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls == w.failOn {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func outboxEvents() []*OutboxEvent {
	return []*OutboxEvent{
		{ID: 1, AggregateID: "order-a", EventType: EventOrderCreated, Payload: []byte(`{"order_id":"order-a"}`)},
		{ID: 2, AggregateID: "order-a", EventType: EventOrderCancelled, Payload: []byte(`{"order_id":"order-a"}`)},
		{ID: 3, AggregateID: "order-b", EventType: EventOrderCreated, Payload: []byte(`{"order_id":"order-b"}`)},
	}
}

func TestPublishPending(t *testing.T) {
	store := &memOutbox{events: outboxEvents()}
	w := &recordingWriter{}
	p := NewOutboxPublisherWithWriter(store, w, zaptest.NewLogger(t))

	n := p.publishPending(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, store.published)

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "order-a", string(w.msgs[0].Key))
	assert.Equal(t, `{"order_id":"order-a"}`, string(w.msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(EventOrderCancelled)}}, w.msgs[1].Headers)

	assert.Zero(t, p.publishPending(context.Background()))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishPending_StopsAtFirstFailure(t *testing.T) {
	store := &memOutbox{events: outboxEvents()}
	w := &recordingWriter{failOn: 2}
	p := NewOutboxPublisherWithWriter(store, w, zaptest.NewLogger(t))

	assert.Equal(t, 1, p.publishPending(context.Background()))
	assert.Equal(t, []int64{1}, store.published)

	// the next tick resumes with the event that failed
	assert.Equal(t, 2, p.publishPending(context.Background()))
	assert.Equal(t, []int64{1, 2, 3}, store.published)
}

func TestPublishPending_FetchError(t *testing.T) {
	store := &memOutbox{fetchErr: errors.New("db down")}
	w := &recordingWriter{}
	p := NewOutboxPublisherWithWriter(store, w, zaptest.NewLogger(t))

	assert.Zero(t, p.publishPending(context.Background()))
	assert.Zero(t, w.calls)
}
