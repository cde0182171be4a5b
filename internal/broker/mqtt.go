package broker

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/model"
)

const publishTimeout = 5 * time.Second

func BuildMQTTClient(cfg config.MQTTConfig, logger zerolog.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	return mqtt.NewClient(opts)
}

type connector interface {
	Connect() mqtt.Token
}

// ConnectWithBackoff retries the first connection, doubling the wait up to max.
// Later drops are handled by the client's auto reconnect.
func ConnectWithBackoff(ctx context.Context, client connector, logger zerolog.Logger, start, max time.Duration) error {
	backoff := start
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		logger.Error().Err(token.Error()).Dur("retry_in", backoff).Msg("mqtt connect error")
		select {
		case <-time.After(backoff):
			if backoff < max {
				backoff *= 2
				if backoff > max {
					backoff = max
				}
			}
		case <-ctx.Done():
			logger.Info().Msg("context cancelled before mqtt connect")
			return ctx.Err()
		}
	}
}

type publisherClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client publisherClient
	topic  string
	qos    byte
}

func NewMQTTPublisher(client publisherClient, cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: cfg.Topic, qos: byte(cfg.QoS)}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Insert(ctx context.Context, rec *model.ProcessedRecord) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "mqtt publish to %s", p.topic)
	}
	timeout := publishTimeout
	if dl, ok := ctx.Deadline(); ok {
		if timeout = time.Until(dl); timeout <= 0 {
			return errors.Wrapf(context.DeadlineExceeded, "mqtt publish to %s", p.topic)
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	token := p.client.Publish(p.topic, p.qos, false, b)
	if !token.WaitTimeout(timeout) {
		return errors.Errorf("mqtt publish to %s timed out", p.topic)
	}
	return errors.Wrapf(token.Error(), "mqtt publish to %s", p.topic)
}

func (p *MQTTPublisher) Close(ctx context.Context) error {
	p.client.Disconnect(250)
	return nil
}
