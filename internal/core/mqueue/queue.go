// Package mqueue is the durable work queue (C2): a RabbitMQ-backed FIFO
// carrying {repo_id, url} jobs from Feeder to Workers, plus an HTTP client
// for the broker's management API that the Controller polls for queue
// depth and drain rate. Grounded on
// other_examples/deepanshu-rawat6-go-polyglot-persistence's worker/consumer
// split (durable declare, persistent publish, prefetch=1 manual ack).
package mqueue

import (
	"context"
	"encoding/json"
	"fmt"

	perr "dex/internal/platform/errors"
	"dex/internal/platform/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Job is the ephemeral queue payload: one repository to index
type Job struct {
	RepoID string `json:"repo_id"`
	URL    string `json:"url"`
}

// Delivery wraps an amqp091-go delivery with the decoded Job and the
// ack/nack the Worker calls once it has processed (or given up on) it
type Delivery struct {
	Job Job

	raw amqp.Delivery
}

// Ack acknowledges successful (or terminally-failed-but-handled) processing
func (d Delivery) Ack() error { return d.raw.Ack(false) }

// Nack rejects the delivery: with requeue true the broker redelivers it,
// with requeue false it is dropped (the channel-close path also redelivers
// unacked deliveries automatically)
func (d Delivery) Nack(requeue bool) error { return d.raw.Nack(false, requeue) }

// Queue is a durable work queue bound to one named AMQP queue
type Queue struct {
	Name string

	conn *amqp.Connection
	ch   *amqp.Channel
}

// Open dials the broker, opens a channel, and declares the named durable
// queue. One Queue handle is meant to be held per process (orchestrator or
// worker), not shared across goroutines concurrently beyond what amqp091-go
// itself allows (a Channel is not safe for concurrent Publish).
func Open(url, queueName string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, perr.BootFailure(err, "mqueue: dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, perr.BootFailure(err, "mqueue: open channel")
	}
	q := &Queue{Name: queueName, conn: conn, ch: ch}
	if err := q.declare(); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) declare() error {
	_, err := q.ch.QueueDeclare(q.Name, true, false, false, false, nil)
	if err != nil {
		return perr.BootFailure(err, "mqueue: declare queue")
	}
	return nil
}

// Purge empties the queue (used at session boot, §4.7 step 6)
func (q *Queue) Purge(ctx context.Context) error {
	_, err := q.ch.QueuePurge(q.Name, false)
	return err
}

// Publish sends one Job as a persistent message
func (q *Queue) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("mqueue: marshal job: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume sets prefetch=1 (strict one-in-flight per worker, so queue depth
// accurately reflects backlog per spec.md §4.3) and returns a channel of
// decoded deliveries. Parse failures are logged, nacked without requeue, and
// do not appear on the returned channel.
func (q *Queue) Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("mqueue: qos: %w", err)
	}
	raw, err := q.ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("mqueue: consume: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				var job Job
				if err := json.Unmarshal(d.Body, &job); err != nil {
					logger.Get().Warn().Err(err).Msg("mqueue: malformed job payload, dropping")
					_ = d.Nack(false, false)
					continue
				}
				select {
				case out <- Delivery{Job: job, raw: d}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close tears down the channel and connection
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	var err error
	if q.ch != nil {
		err = q.ch.Close()
	}
	if q.conn != nil {
		if cerr := q.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Ping verifies the connection is alive (used by the Orchestrator's boot probe)
func (q *Queue) Ping(ctx context.Context) error {
	if q == nil || q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("mqueue: connection closed")
	}
	return nil
}
