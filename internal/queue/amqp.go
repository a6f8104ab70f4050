// internal/queue/amqp.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// AMQPQueue publishes and consumes durable RabbitMQ queues, one per topic.
type AMQPQueue struct {
	conn *amqp.Connection

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool

	log zerolog.Logger
}

func DialAMQP(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &AMQPQueue{
		conn:     conn,
		ch:       ch,
		declared: map[string]bool{},
		log:      log,
	}, nil
}

// declare must be called with mu held.
func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(q.ch, topic); err != nil {
		return err
	}

	msgID := uuid.NewString()
	err = q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	q.log.Debug().Str("topic", topic).Str("message_id", msgID).RawJSON("payload", body).Msg("job published")
	return nil
}

// Subscribe consumes topic on its own channel until ctx is done. Failed
// deliveries are requeued once, then dropped.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	q.mu.Lock()
	err = q.declare(ch, topic)
	q.mu.Unlock()
	if err != nil {
		ch.Close()
		return err
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				q.handle(ctx, topic, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	log := q.log.With().Str("topic", topic).Str("message_id", d.MessageId).Logger()

	err := handler(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case d.Redelivered:
		log.Error().Err(err).Msg("job failed after redelivery, dropping")
		_ = d.Nack(false, false)
	default:
		log.Warn().Err(err).Msg("job failed, requeueing")
		_ = d.Nack(false, true)
	}
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.Close(); err != nil {
		q.log.Warn().Err(err).Msg("failed to close channel")
	}
	return q.conn.Close()
}
