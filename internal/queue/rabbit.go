package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitEnqueuer publishes jobs to a durable RabbitMQ queue.
type RabbitEnqueuer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitEnqueuer(url string) (*RabbitEnqueuer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}
	return &RabbitEnqueuer{conn: conn, ch: ch}, nil
}

func (e *RabbitEnqueuer) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	err = e.ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing %s job: %w", job.Kind, err)
	}
	return nil
}

func (e *RabbitEnqueuer) Close() error {
	if e.ch != nil {
		e.ch.Close()
	}
	return e.conn.Close()
}

// Consumer pulls jobs off the queue and runs them through a handler with
// manual acks. Failed jobs are nacked without requeue; the raw webhook event
// table keeps enough context to replay them by hand.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(url string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.Qos(5, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setting qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch}, nil
}

// Run blocks until the context is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var job Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Printf("[Queue] dropping undecodable job: %v", err)
				d.Nack(false, false)
				continue
			}
			if err := handler(ctx, job); err != nil {
				log.Printf("[Queue] %s job failed: %v", job.Kind, err)
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	return c.conn.Close()
}
