package events

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler applies a received event.
type Handler interface {
	ApplyEvent(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) ApplyEvent(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Subscriber dispatches deliveries from a queue to a Handler.
type Subscriber struct {
	handler Handler
	logger  *slog.Logger
	userID  string
}

// NewSubscriber creates a subscriber. When userID is set, events for other
// users are acknowledged and skipped.
func NewSubscriber(handler Handler, userID string, logger *slog.Logger) *Subscriber {
	return &Subscriber{handler: handler, userID: userID, logger: logger}
}

// Run handles deliveries until ctx is canceled or the channel closes.
func (s *Subscriber) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	s.logger.Info("Event subscriber started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Event subscriber stopped - context canceled")
			return ctx.Err()

		case delivery, ok := <-deliveries:
			if !ok {
				s.logger.Warn("RabbitMQ delivery channel closed")
				return nil
			}
			s.handle(ctx, delivery)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, delivery amqp.Delivery) {
	e, err := Decode(delivery.Body)
	if err != nil {
		s.logger.Error("Failed to decode event",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		// Malformed events are dropped, never requeued.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			s.logger.Error("Failed to NACK malformed event",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if s.userID != "" && e.UserID != "" && e.UserID != s.userID {
		s.ack(delivery, e)
		return
	}

	if err := s.handler.ApplyEvent(ctx, e); err != nil {
		requeue := !errors.Is(err, ErrInvalidEvent) && ctx.Err() == nil
		s.logger.Error("Failed to apply event",
			slog.String("type", string(e.Type)),
			slog.String("job_id", e.JobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			s.logger.Error("Failed to NACK event",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	s.ack(delivery, e)
}

func (s *Subscriber) ack(delivery amqp.Delivery, e Event) {
	if err := delivery.Ack(false); err != nil {
		s.logger.Error("Failed to ACK event",
			slog.String("job_id", e.JobID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("Event applied",
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
	)
}
