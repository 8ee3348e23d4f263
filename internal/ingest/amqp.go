package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/guilherme-santos/notifcal/internal"
)

const DefaultPrefetch = 8

type Processor interface {
	Process(context.Context, internal.Notification) (Result, error)
}

// Consumer reads notifications from a durable queue. Deliveries are acked
// once their outcome is recorded, so a crash means re-delivery and the
// notification log turns it into a duplicate.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	logger   *slog.Logger
}

func NewConsumer(url, queue string, prefetch int, logger *slog.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, prefetch: prefetch, logger: logger}, nil
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, p Processor) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info("consuming notifications", "queue", c.queue, "prefetch", c.prefetch)

	var wg sync.WaitGroup
	for w := 0; w < c.prefetch; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.settle(d, handleDelivery(ctx, p, d.Body, c.logger))
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) settle(d amqp.Delivery, v verdict) {
	var err error
	switch v {
	case ack:
		err = d.Ack(false)
	case requeue:
		err = d.Nack(false, true)
	case reject:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Error("unable to settle delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type verdict int

const (
	ack verdict = iota
	requeue
	reject
)

func handleDelivery(ctx context.Context, p Processor, body []byte, logger *slog.Logger) verdict {
	var n internal.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		logger.Warn("dropping undecodable notification", "error", err)
		return reject
	}
	res, err := p.Process(ctx, n)
	switch {
	case errors.Is(err, internal.ErrInvalidInput):
		logger.Warn("dropping invalid notification", "error", err)
		return reject
	case err != nil:
		logger.Error("unable to process notification, requeueing", "notification_id", n.ID(), "error", err)
		return requeue
	}
	logger.Debug("notification consumed", "notification_id", res.ID, "outcome", res.Outcome.String())
	return ack
}

// Publisher sends notifications to the queue a Consumer reads.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Publish(ctx context.Context, n internal.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID(),
		Body:         b,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	return conn, ch, nil
}
