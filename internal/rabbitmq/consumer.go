package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one delivery body. Returning an error nacks the
// delivery without requeue.
type HandlerFunc func(ctx context.Context, routingKey string, body []byte) error

// Consumer reads a durable queue bound to the topic exchange.
type Consumer struct {
	url      string
	exchange string
	queue    string
	bindings []string
	prefetch int
}

// NewConsumer describes a queue and the routing keys bound to it.
func NewConsumer(url, exchange, queue string, bindings ...string) *Consumer {
	return &Consumer{url: url, exchange: exchange, queue: queue, bindings: bindings, prefetch: 16}
}

// Run consumes until ctx is cancelled or the connection drops. An empty URL
// disables the consumer and Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	if c.url == "" {
		log.Printf("rabbitmq consumer disabled queue=%s: empty amqp url", c.queue)
		<-ctx.Done()
		return nil
	}

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, c.exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range c.bindings {
		if err := ch.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue key=%s: %w", key, err)
		}
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Printf("rabbitmq consuming queue=%s bindings=%v", c.queue, c.bindings)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			Process(ctx, d, handle)
		}
	}
}

// Acknowledger is the part of a delivery used to settle it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Process runs handle for one delivery and settles it.
func Process(ctx context.Context, d amqp.Delivery, handle HandlerFunc) {
	settle(ctx, d.RoutingKey, d.Body, d, handle)
}

func settle(ctx context.Context, routingKey string, body []byte, ack Acknowledger, handle HandlerFunc) {
	if err := handle(ctx, routingKey, body); err != nil {
		log.Printf("rabbitmq handler failed routing_key=%s: %v", routingKey, err)
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
}
