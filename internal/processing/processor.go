// Package processing turns relayed sensor frames into stored records with summary stats
// and acknowledges each one back to the relay.
package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/metrics"
	"github.com/lucaslui/hems/gait-processor/internal/model"
	"github.com/lucaslui/hems/gait-processor/internal/storage"
	"github.com/lucaslui/hems/gait-processor/internal/transform"
	"github.com/lucaslui/hems/gait-processor/internal/wsclient"
)

// DeadLetterSink receives frames that could not be parsed.
type DeadLetterSink interface {
	SendDLQ(ctx context.Context, raw []byte, cause error, receivedAt time.Time) error
}

type Processor struct {
	store   storage.Store
	dlq     DeadLetterSink
	metrics *metrics.Metrics
	logger  zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewProcessor builds a processor. dlq and m may be nil.
func NewProcessor(store storage.Store, dlq DeadLetterSink, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		store:   store,
		dlq:     dlq,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (p *Processor) BuildRecord(msg model.InboundMessage, receivedAt time.Time) *model.ProcessedRecord {
	sensors := msg.Data()
	return &model.ProcessedRecord{
		Metadata:          p.buildMetadata(msg, receivedAt, transform.NumericCount(sensors)),
		Sensors:           sensors,
		OriginalTimestamp: msg.Timestamp(),
		Status:            model.StatusProcessed,
		Stats:             transform.ComputeStats(sensors),
	}
}

func (p *Processor) buildMetadata(msg model.InboundMessage, receivedAt time.Time, numeric int) model.RecordMetadata {
	return model.RecordMetadata{
		EventID:        p.newID(),
		ClientID:       msg.ClientID(),
		ReceivedAt:     receivedAt.UTC(),
		ProcessingNote: fmt.Sprintf("average/max/min over %d numeric sensor values", numeric),
	}
}

// Process parses one frame, stores the record and returns the acknowledgement to send.
// Only parse failures are returned as errors. A store failure still yields an ack,
// with status store_failed.
func (p *Processor) Process(ctx context.Context, raw []byte) (model.AckFrame, error) {
	receivedAt := p.now()

	msg, err := model.ParseInbound(raw)
	if err != nil {
		p.metrics.ParseError()
		p.logger.Error().Err(err).
			Int("bytes", len(raw)).
			Str("payload", config.Truncate(raw, 512)).
			Msg("invalid frame")
		p.emitDLQ(ctx, raw, err, receivedAt)
		return model.AckFrame{}, errors.Wrap(err, "parse frame")
	}

	rec := p.BuildRecord(msg, receivedAt)

	status := model.StatusStored
	if err := p.store.Insert(ctx, rec); err != nil {
		status = model.StatusStoreFailed
		p.metrics.StoreError()
		p.logger.Error().Err(err).
			Str("event_id", rec.Metadata.EventID).
			Str("client_id", rec.Metadata.ClientID).
			Msg("store error")
	} else {
		p.metrics.Stored(rec.Stats.Average)
		p.logger.Debug().
			Str("event_id", rec.Metadata.EventID).
			Str("client_id", rec.Metadata.ClientID).
			Float64("average", rec.Stats.Average).
			Msg("record stored")
	}

	return model.AckFrame{
		Type:               model.FrameProcessed,
		Status:             status,
		OriginalTimestamp:  rec.OriginalTimestamp,
		ProcessedTimestamp: p.now().UTC().Format(time.RFC3339Nano),
		Stats:              rec.Stats,
	}, nil
}

func (p *Processor) emitDLQ(ctx context.Context, raw []byte, cause error, receivedAt time.Time) {
	if p.dlq == nil {
		return
	}
	if err := p.dlq.SendDLQ(ctx, raw, cause, receivedAt); err != nil {
		p.logger.Error().Err(err).Msg("kafka write error (dlq)")
		return
	}
	p.logger.Info().Int("bytes", len(raw)).Msg("dlq OK")
}

// Serve handles frames until the session fails, a frame cannot be parsed, or ctx ends.
// An ack that cannot be encoded is dropped. The caller reconnects.
func (p *Processor) Serve(ctx context.Context, s wsclient.Session) error {
	for {
		raw, err := s.Read(ctx)
		if err != nil {
			return err
		}
		start := time.Now()
		p.metrics.FrameReceived()
		p.logger.Debug().Int("bytes", len(raw)).Str("payload", config.Truncate(raw, 512)).Msg("ws rx")

		ack, err := p.Process(ctx, raw)
		if err != nil {
			return err
		}
		if err := s.Send(ack); err != nil {
			if errors.Is(err, wsclient.ErrEncodeFrame) {
				p.logger.Error().Err(err).Str("status", ack.Status).Msg("ack dropped")
				continue
			}
			return errors.Wrap(err, "send ack")
		}
		p.metrics.AckSent()
		p.metrics.ObserveLatency(time.Since(start))
	}
}
