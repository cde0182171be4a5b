// Package broker publishes processed records to message brokers.
//
// KafkaPublisher wraps two kafka.Writer instances, one for the processed topic and one
// for the dead-letter topic that receives frames the processor could not parse.
// MQTTPublisher pushes the same records to an MQTT topic.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	main messageWriter
	dlq  messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	balancer := &kafka.Hash{}

	main := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: balancer,

		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 5 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}

	dlq := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.DLQTopic,
		Balancer: balancer,

		BatchSize:    10,
		BatchBytes:   512 << 10,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}

	return &KafkaPublisher{main: main, dlq: dlq}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Insert publishes the record keyed by client id.
func (p *KafkaPublisher) Insert(ctx context.Context, rec *model.ProcessedRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	if err := p.main.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Metadata.ClientID),
		Value: b,
		Headers: []kafka.Header{{
			Key:   "receivedAt",
			Value: []byte(rec.Metadata.ReceivedAt.Format(time.RFC3339Nano)),
		}},
	}); err != nil {
		return errors.Wrap(err, "kafka write (main)")
	}
	return nil
}

// DeadLetter is the envelope written for a frame that could not be processed.
type DeadLetter struct {
	Error      string `json:"error"`
	Original   any    `json:"original"`
	ReceivedAt string `json:"receivedAt"`
}

func NewDeadLetter(raw []byte, cause error, receivedAt time.Time) DeadLetter {
	dl := DeadLetter{
		Error:      cause.Error(),
		ReceivedAt: receivedAt.UTC().Format(time.RFC3339Nano),
	}
	if json.Valid(raw) {
		dl.Original = json.RawMessage(raw)
	} else {
		dl.Original = string(raw)
	}
	return dl
}

func (p *KafkaPublisher) SendDLQ(ctx context.Context, raw []byte, cause error, receivedAt time.Time) error {
	b, err := json.Marshal(NewDeadLetter(raw, cause, receivedAt))
	if err != nil {
		return errors.Wrap(err, "marshal dead letter")
	}
	if err := p.dlq.WriteMessages(ctx, kafka.Message{Key: []byte("invalid"), Value: b}); err != nil {
		return errors.Wrap(err, "kafka write (dlq)")
	}
	return nil
}

func (p *KafkaPublisher) Close(ctx context.Context) error {
	errMain := p.main.Close()
	errDLQ := p.dlq.Close()
	if errMain != nil {
		return errors.Wrap(errMain, "close kafka writer")
	}
	return errors.Wrap(errDLQ, "close kafka dlq writer")
}
