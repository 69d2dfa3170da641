package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/handler"
	"findtrades/shared/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQAdapter consumes a RabbitMQ queue and feeds each delivery through
// the handler. Deliveries are acked on success; failures are requeued once
// when retryable and dropped otherwise.
type RabbitMQAdapter struct {
	handler handler.Runner
	config  *config.RabbitMQConfig
	logger  observability.Logger
	metrics observability.Metrics

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQAdapter creates a consumer adapter
func NewRabbitMQAdapter(h handler.Runner, cfg *config.RabbitMQConfig, provider observability.Provider) *RabbitMQAdapter {
	return &RabbitMQAdapter{
		handler: h,
		config:  cfg,
		logger:  provider.Logger("rabbitmq"),
		metrics: provider.Metrics("rabbitmq"),
	}
}

// Start connects, declares the queue and consumes until ctx is cancelled
// or the broker closes the delivery channel.
func (a *RabbitMQAdapter) Start(ctx context.Context) error {
	conn, err := amqp.Dial(a.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	a.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	a.channel = ch

	if a.config.PrefetchCount > 0 {
		if err := ch.Qos(a.config.PrefetchCount, 0, false); err != nil {
			a.Close()
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	q, err := ch.QueueDeclare(
		a.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(
		ctx,
		q.Name, // queue
		"",     // consumer tag (auto-generated)
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to consume: %w", err)
	}

	a.logger.Info(ctx, "RabbitMQ consumer started", observability.Fields{
		"queue":    a.config.Queue,
		"prefetch": a.config.PrefetchCount,
	})

	return a.Consume(ctx, msgs)
}

// Consume processes deliveries until ctx is done or msgs is closed.
func (a *RabbitMQAdapter) Consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			a.processMessage(ctx, msg)
		}
	}
}

// Close closes the channel and the connection.
func (a *RabbitMQAdapter) Close() error {
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}

func (a *RabbitMQAdapter) processMessage(ctx context.Context, msg amqp.Delivery) {
	start := time.Now()

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	req := a.buildRequest(msg)
	resp, err := a.handler.Handle(ctx, req)

	fields := observability.Fields{
		"id":          req.ID,
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if err == nil && resp.Success {
		if ackErr := msg.Ack(false); ackErr != nil {
			a.logger.Error(ctx, "Failed to ack message", ackErr, fields)
		}
		a.metrics.RecordSuccess("consume")
		a.logger.Debug(ctx, "Message processed", fields)
		return
	}

	retryable := resp.Error != nil && resp.Error.Retryable
	requeue := retryable && !msg.Redelivered
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		a.logger.Error(ctx, "Failed to nack message", nackErr, fields)
	}

	fields["requeue"] = requeue
	if resp.Error != nil {
		fields["error_code"] = resp.Error.Code
	}
	a.logger.Warn(ctx, "Message processing failed", fields)
	a.metrics.RecordError("consume", "processing_failed")
}

func (a *RabbitMQAdapter) buildRequest(msg amqp.Delivery) handler.Request {
	metadata := map[string]string{
		"rabbitmq_routing_key": msg.RoutingKey,
		"rabbitmq_exchange":    msg.Exchange,
	}
	for key, value := range msg.Headers {
		if s, ok := value.(string); ok {
			metadata[key] = s
		}
	}
	if msg.CorrelationId != "" {
		metadata["correlation-id"] = msg.CorrelationId
	}

	requestType := msg.Type
	if requestType == "" {
		requestType = metadata["type"]
	}
	if requestType == "" {
		requestType = "rabbitmq_message"
	}

	id := msg.MessageId
	if id == "" {
		id = fmt.Sprintf("rmq-%d", msg.DeliveryTag)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return handler.Request{
		ID:        id,
		Source:    handler.PlatformRabbitMQ,
		Type:      requestType,
		Payload:   json.RawMessage(msg.Body),
		Metadata:  metadata,
		Timestamp: ts,
	}
}
