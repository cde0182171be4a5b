package broker

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/hems/gait-processor/internal/config"
)

// EnsureKafkaTopics creates the processed and dead-letter topics when they are missing.
func EnsureKafkaTopics(ctx context.Context, cfg config.KafkaConfig, logger zerolog.Logger) error {
	bootstrap := cfg.Brokers[0]
	logger.Info().Str("bootstrap", bootstrap).Msg("kafka ensuring topics")

	conn, err := kafka.DialContext(ctx, "tcp", bootstrap)
	if err != nil {
		return errors.Wrapf(err, "dial %s", bootstrap)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return errors.Wrap(err, "kafka controller")
	}
	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafka.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return errors.Wrapf(err, "dial controller %s", ctrlAddr)
	}
	defer ctrlConn.Close()

	exists := func(topic string) bool {
		parts, err := conn.ReadPartitions(topic)
		return err == nil && len(parts) > 0
	}

	for _, tc := range topicConfigs(cfg) {
		if exists(tc.Topic) {
			logger.Info().Str("topic", tc.Topic).Msg("kafka topic already exists, skipping")
			continue
		}
		logger.Info().
			Str("topic", tc.Topic).
			Int("partitions", tc.NumPartitions).
			Int("rf", tc.ReplicationFactor).
			Msg("kafka creating topic")
		if err := ctrlConn.CreateTopics(tc); err != nil {
			return errors.Wrapf(err, "create topic %s", tc.Topic)
		}
	}
	return nil
}

func topicConfigs(cfg config.KafkaConfig) []kafka.TopicConfig {
	entries := []kafka.ConfigEntry{{ConfigName: "compression.type", ConfigValue: "snappy"}}
	return []kafka.TopicConfig{
		{
			Topic:             cfg.Topic,
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
			ConfigEntries:     entries,
		},
		{
			Topic:             cfg.DLQTopic,
			NumPartitions:     1,
			ReplicationFactor: cfg.ReplicationFactor,
			ConfigEntries:     entries,
		},
	}
}
