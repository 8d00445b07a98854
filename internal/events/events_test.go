package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

// MockBroker is a mock implementation of Broker
type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	args := m.Called(ctx, routingKey, body, contentType)
	return args.Error(0)
}

// fakeAcknowledger records ack and nack calls by delivery tag.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Event
		wantErr bool
	}{
		{
			name: "created",
			body: `{"type":"created","job_id":"abc123","user_id":"u1","occurred_at":"2024-05-01T10:00:00Z"}`,
			want: Event{Type: TypeCreated, JobID: "abc123", UserID: "u1", OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		},
		{name: "not json", body: `nope`, wantErr: true},
		{name: "unknown type", body: `{"type":"archived","job_id":"abc123"}`, wantErr: true},
		{name: "missing job id", body: `{"type":"deleted"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvent_RoutingKey(t *testing.T) {
	assert.Equal(t, "job.deleted", New(TypeDeleted, "abc123", "").RoutingKey())
}

func TestPublisher_Publish(t *testing.T) {
	broker := new(MockBroker)
	e := New(TypeUpdated, "abc123", "u1")

	broker.On("PublishWithRetry", mock.Anything, "job.updated", mock.MatchedBy(func(body []byte) bool {
		var got Event
		return json.Unmarshal(body, &got) == nil && got.JobID == "abc123" && got.Type == TypeUpdated
	}), ContentType).Return(nil)

	p := NewPublisher(broker, discard)
	require.NoError(t, p.Publish(context.Background(), e))
	broker.AssertExpectations(t)
}

func TestPublisher_Errors(t *testing.T) {
	broker := new(MockBroker)
	broker.On("PublishWithRetry", mock.Anything, "job.created", mock.Anything, ContentType).
		Return(errors.New("channel closed"))

	p := NewPublisher(broker, discard)

	err := p.Publish(context.Background(), New(TypeCreated, "abc123", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish created event")

	err = p.Publish(context.Background(), New(TypeCreated, "", ""))
	assert.ErrorIs(t, err, ErrInvalidEvent)
	broker.AssertNumberOfCalls(t, "PublishWithRetry", 1)
}

func TestPublisher_NoBroker(t *testing.T) {
	p := NewPublisher(nil, discard)
	assert.NoError(t, p.Publish(context.Background(), New(TypeDeleted, "abc123", "")))
}

func TestSubscriber_Run(t *testing.T) {
	ack := &fakeAcknowledger{}
	deliveries := make(chan amqp.Delivery, 4)
	deliveries <- delivery(ack, 1, `{"type":"created","job_id":"a","user_id":"u1"}`)
	deliveries <- delivery(ack, 2, `garbage`)
	deliveries <- delivery(ack, 3, `{"type":"updated","job_id":"b","user_id":"someone-else"}`)
	deliveries <- delivery(ack, 4, `{"type":"deleted","job_id":"c","user_id":"u1"}`)
	close(deliveries)

	var applied []Event
	handler := HandlerFunc(func(ctx context.Context, e Event) error {
		applied = append(applied, e)
		if e.JobID == "c" {
			return errors.New("refetch failed")
		}
		return nil
	})

	s := NewSubscriber(handler, "u1", discard)
	require.NoError(t, s.Run(context.Background(), deliveries))

	require.Len(t, applied, 2)
	assert.Equal(t, "a", applied[0].JobID)
	assert.Equal(t, "c", applied[1].JobID)

	assert.Equal(t, []uint64{1, 3}, ack.acked)
	assert.Equal(t, []uint64{2, 4}, ack.nacked)
	assert.Equal(t, []bool{false, true}, ack.requeue)
}

func TestSubscriber_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSubscriber(HandlerFunc(func(context.Context, Event) error { return nil }), "", discard)
	err := s.Run(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}
