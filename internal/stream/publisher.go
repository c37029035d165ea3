// Package stream relays committed exchange events from the outbox to Kafka.
// The relay polls for pending records, marks each sent before producing it
// and acked after the broker confirms, so a crash at any point causes a
// resend rather than a loss. Consumers see at-least-once delivery.
package stream

import (
	"context"
	"log"
	"time"

	"github.com/IBM/sarama"

	"predex/internal/outbox"
)

const (
	pollInterval = 250 * time.Millisecond
	maxRetries   = 10
)

// producer is the slice of sarama.SyncProducer the relay uses.
type producer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Publisher drains the outbox into one Kafka topic.
type Publisher struct {
	producer producer
	outbox   *outbox.Outbox
	topic    string
}

func New(brokers []string, topic string, ob *outbox.Outbox) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: p, outbox: ob, topic: topic}, nil
}

// Start launches the relay loop. It stops when the context is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.replayOnce()
			}
		}
	}()
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// replayOnce walks the pending records in sequence order and attempts each.
// A failed send is left in SENT state and retried next tick; a record that
// exhausts its retries is parked as FAILED so it stops blocking the log.
func (p *Publisher) replayOnce() {
	err := p.outbox.ScanPending(func(rec *outbox.Record) error {
		if rec.Retries >= maxRetries {
			log.Printf("stream: parking event seq=%d type=%s after %d attempts", rec.Seq, rec.Type, rec.Retries)
			return p.outbox.MarkFailed(rec.Seq)
		}

		if err := p.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}
		_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: p.topic,
			Value: sarama.ByteEncoder(rec.Payload),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event_type"), Value: []byte(rec.Type)},
			},
		})
		if err != nil {
			// Leave it SENT; the next tick retries.
			log.Printf("stream: send failed for seq=%d type=%s: %v", rec.Seq, rec.Type, err)
			return nil
		}
		return p.outbox.MarkAcked(rec.Seq)
	})
	if err != nil {
		log.Printf("stream: replay scan failed: %v", err)
	}
}
