package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"checkout/internal/shared/events"
)

const (
	rabbitExchange    = "checkout.events"
	rabbitDLX         = "checkout.events.dlx"
	rabbitParkedQueue = "checkout.events.parked"
)

// Rabbit is the RabbitMQ event transport. A direct exchange routes by
// message type; each (message type, consumer group) pair gets its own
// durable queue, so groups consume independently and redelivery stays
// scoped to the failing group.
type Rabbit struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	registry *events.Registry
	logger   *slog.Logger
}

func NewRabbit(url string, registry *events.Registry, logger *slog.Logger) (*Rabbit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		rabbitExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := declareParking(channel); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Rabbit{
		conn:     conn,
		channel:  channel,
		registry: registry,
		logger:   logger,
	}, nil
}

func (r *Rabbit) Publish(ctx context.Context, messageType string, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	meta := event.Meta()
	return r.channel.PublishWithContext(ctx, rabbitExchange, messageType, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     meta.MessageID,
		CorrelationId: meta.CorrelationID,
		Type:          messageType,
		Timestamp:     meta.OccurredAt,
		Body:          body,
	})
}

func (r *Rabbit) Subscribe(
	ctx context.Context,
	messageType string,
	consumerGroup string,
	handler func(context.Context, events.Event) error,
) error {
	// Consumption runs on its own channel so one stalled consumer cannot
	// block publishes or other groups.
	channel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	queueName := messageType + "." + consumerGroup
	if _, err := channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-dead-letter-exchange": rabbitDLX},
	); err != nil {
		_ = channel.Close()
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := channel.QueueBind(queueName, messageType, rabbitExchange, false, nil); err != nil {
		_ = channel.Close()
		return fmt.Errorf("bind queue %s: %w", queueName, err)
	}

	deliveries, err := channel.Consume(queueName, consumerGroup, false, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		return fmt.Errorf("consume queue %s: %w", queueName, err)
	}

	go func() {
		defer channel.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-deliveries:
				if !ok {
					return
				}
				r.dispatch(ctx, consumerGroup, item, handler)
			}
		}
	}()
	return nil
}

func (r *Rabbit) dispatch(ctx context.Context, group string, item amqp.Delivery, handler func(context.Context, events.Event) error) {
	event, err := r.registry.Decode(item.Type, item.Body)
	if err != nil {
		// Undecodable payloads would redeliver forever; reject without
		// requeue instead.
		r.logger.Error("dropping undecodable delivery",
			"event", "rabbit_decode_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"message_type", item.Type,
			"consumer_group", group,
			"message_id", item.MessageId,
			"error", err.Error(),
		)
		_ = item.Nack(false, false)
		return
	}

	if err := handler(ctx, event); err != nil {
		// First failure requeues once; a redelivered failure dead-letters
		// to the parked queue so a broken handler cannot spin the broker.
		// The inbox guard makes the extra delivery harmless.
		if item.Redelivered {
			r.logger.Error("redelivered handler failure parked",
				"event", "rabbit_delivery_parked",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"message_type", item.Type,
				"consumer_group", group,
				"message_id", item.MessageId,
				"error", err.Error(),
			)
			_ = item.Nack(false, false)
			return
		}
		r.logger.Warn("consumer handler failed, requeueing",
			"event", "rabbit_requeue",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"message_type", item.Type,
			"consumer_group", group,
			"message_id", item.MessageId,
			"error", err.Error(),
		)
		_ = item.Nack(false, true)
		return
	}
	_ = item.Ack(false)
}

// declareParking sets up the dead-letter topology: one fanout exchange and
// one durable queue catching every parked delivery regardless of type.
func declareParking(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(
		rabbitDLX,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := channel.QueueDeclare(
		rabbitParkedQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare parked queue: %w", err)
	}
	if err := channel.QueueBind(rabbitParkedQueue, "", rabbitDLX, false, nil); err != nil {
		return fmt.Errorf("bind parked queue: %w", err)
	}
	return nil
}

func (r *Rabbit) Close() error {
	if r == nil {
		return nil
	}
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
