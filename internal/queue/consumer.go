package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Delivery is one message handed to a handler.
type Delivery struct {
	Subject string
	Data    []byte
	// Attempt starts at 1 and grows with each redelivery.
	Attempt int
}

// MessageHandler returns an error to have the message redelivered.
type MessageHandler func(ctx context.Context, d Delivery) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL, "facegate-consumer")
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeEnrollments starts consuming the ENROLLMENTS stream (gateway events
// and bucket notifications). workerCount goroutines process messages
// concurrently. maxDeliver is the handler's budget: the handler sees the
// attempt number and dead-letters once it is used up.
func (c *Consumer) ConsumeEnrollments(ctx context.Context, consumerName string, handler MessageHandler, workerCount, maxDeliver int) error {
	stream, err := c.js.Stream(ctx, EnrollmentsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EnrollmentsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, enrollmentConsumerConfig(consumerName))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch enrollments error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				d := delivery(msg)
				if err := handler(ctx, d); err != nil {
					slog.Error("process enrollment error", "worker", workerID, "error", err,
						"subject", d.Subject, "attempt", d.Attempt)
					_ = msg.NakWithDelay(backoff(d.Attempt))
				} else {
					_ = msg.Ack()
				}
			}
		}(i)
	}

	slog.Info("enrollment consumer started", "consumer", consumerName, "workers", workerCount, "max_deliver", maxDeliver)
	return nil
}

// ConsumeStatus starts consuming indexing outcomes (for the gateway to push
// over WebSocket). consumerName must be unique per gateway instance: every
// instance needs every status for the browsers connected to it.
func (c *Consumer) ConsumeStatus(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, StatusStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", StatusStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, statusConsumerConfig(consumerName))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, delivery(msg)); err != nil {
					slog.Error("process indexing status error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("status consumer started", "consumer", consumerName)
	return nil
}

// enrollmentConsumerConfig leaves redelivery unbounded on the broker side.
// A message whose dead-letter publish failed must come back, even past the
// handler's attempt budget.
func enrollmentConsumerConfig(name string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    -1,
		FilterSubject: EnrollmentsSubject,
	}
}

// statusConsumerConfig is ephemeral: the server removes it once the
// instance that created it stops fetching.
func statusConsumerConfig(name string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:              name,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     StatusSubject,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 5 * time.Minute,
	}
}

func delivery(msg jetstream.Msg) Delivery {
	d := Delivery{Subject: msg.Subject(), Data: msg.Data(), Attempt: 1}
	if meta, err := msg.Metadata(); err == nil {
		d.Attempt = int(meta.NumDelivered)
	}
	return d
}

// backoff grows linearly with the attempt number, capped at 30s.
func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (c *Consumer) Close() {
	c.nc.Close()
}
