package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Broker is the publishing side of the RabbitMQ client.
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Publisher sends job change events.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates a publisher. A nil broker yields a publisher that
// only logs, for running the API without RabbitMQ.
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: broker, logger: logger}
}

// Publish sends e under its routing key.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if p.broker == nil {
		p.logger.Debug("Event not published - no broker configured",
			slog.String("type", string(e.Type)),
			slog.String("job_id", e.JobID),
		)
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, e.RoutingKey(), body, ContentType); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}

	p.logger.Info("Job event published",
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
	)
	return nil
}
