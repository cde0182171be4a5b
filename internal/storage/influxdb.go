package storage

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/model"
)

// InfluxStore keeps the per-reading stats as a time series, one point per record.
type InfluxStore struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

func NewInfluxStore(cfg config.InfluxConfig) *InfluxStore {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
	}
}

func (s *InfluxStore) Name() string { return "influxdb" }

func (s *InfluxStore) Insert(ctx context.Context, rec *model.ProcessedRecord) error {
	if err := s.writeAPI.WritePoint(ctx, s.buildPoint(rec)); err != nil {
		return errors.Wrap(err, "influx write")
	}
	return nil
}

func (s *InfluxStore) buildPoint(rec *model.ProcessedRecord) *write.Point {
	tags := map[string]string{
		"client_id": rec.Metadata.ClientID,
	}
	fields := map[string]interface{}{
		"average":      rec.Stats.Average,
		"max":          rec.Stats.Max,
		"min":          rec.Stats.Min,
		"sensor_count": int64(len(rec.Sensors)),
	}
	return write.NewPoint(s.measurement, tags, fields, rec.Metadata.ReceivedAt)
}

func (s *InfluxStore) Close(ctx context.Context) error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
