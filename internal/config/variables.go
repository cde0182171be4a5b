package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const DefaultURL = "wss://gait-soles-interface.onrender.com/ws"

type Config struct {
	WS       WSConfig       `mapstructure:"ws"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Influx   InfluxConfig   `mapstructure:"influx"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	S3       S3Config       `mapstructure:"s3"`
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	Role             string        `mapstructure:"role"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type RecorderConfig struct {
	OutputDir          string `mapstructure:"output_dir"`
	Format             string `mapstructure:"format"` // csv, parquet, both
	ParquetCompression string `mapstructure:"parquet_compression"`
	Tail               int    `mapstructure:"tail"`
	ClearScreen        bool   `mapstructure:"clear_screen"`
}

type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type InfluxConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	DLQTopic          string   `mapstructure:"dlq_topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type MQTTConfig struct {
	BrokerURL string `mapstructure:"broker_url"`
	ClientID  string `mapstructure:"client_id"`
	Topic     string `mapstructure:"topic"`
	QoS       int    `mapstructure:"qos"`
	Username  string `mapstructure:"username"` // opcional
	Password  string `mapstructure:"password"` // opcional
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseTLS    bool   `mapstructure:"use_tls"`
	Bucket    string `mapstructure:"bucket"`
	BasePath  string `mapstructure:"base_path"`
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }
func (c RedisConfig) Enabled() bool  { return c.Addr != "" }
func (c KafkaConfig) Enabled() bool  { return len(c.Brokers) > 0 }
func (c MQTTConfig) Enabled() bool   { return c.BrokerURL != "" }
func (c S3Config) Enabled() bool     { return c.Endpoint != "" }

func (c *Config) String() string {
	return fmt.Sprintf(`
WebSocket:
  URL:              %s
  Role:             %s
  HandshakeTimeout: %s
  WriteTimeout:     %s
  ReconnectDelay:   %s

Recorder:
  OutputDir:        %s
  Format:           %s
  Compression:      %s
  Tail:             %d

Mongo:
  URI:              %s
  Database:         %s
  Collection:       %s

Influx:
  URL:              %s
  Token:            %s
  Org:              %s
  Bucket:           %s

Redis:
  Addr:             %s
  Key:              %s
  Channel:          %s

Kafka:
  Brokers:          %v
  Topic:            %s
  DLQTopic:         %s

MQTT:
  BrokerURL:        %s
  Topic:            %s
  QoS:              %d

S3:
  Endpoint:         %s
  Bucket:           %s
  SecretKey:        %s

Metrics:
  Addr:             %s
`,
		c.WS.URL, c.WS.Role, c.WS.HandshakeTimeout, c.WS.WriteTimeout, c.WS.ReconnectDelay,
		c.Recorder.OutputDir, c.Recorder.Format, c.Recorder.ParquetCompression, c.Recorder.Tail,
		maskURI(c.Mongo.URI), c.Mongo.Database, c.Mongo.Collection,
		c.Influx.URL, mask(c.Influx.Token), c.Influx.Org, c.Influx.Bucket,
		c.Redis.Addr, c.Redis.Key, c.Redis.Channel,
		c.Kafka.Brokers, c.Kafka.Topic, c.Kafka.DLQTopic,
		c.MQTT.BrokerURL, c.MQTT.Topic, c.MQTT.QoS,
		c.S3.Endpoint, c.S3.Bucket, mask(c.S3.SecretKey),
		c.Metrics.Addr,
	)
}

func mask(s string) string { return strings.Repeat("*", len(s)) }

func maskURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("ws.url", DefaultURL)
	v.SetDefault("ws.role", "processor")
	v.SetDefault("ws.handshake_timeout", "10s")
	v.SetDefault("ws.write_timeout", "10s")
	v.SetDefault("ws.reconnect_delay", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("recorder.output_dir", ".")
	v.SetDefault("recorder.format", "csv")
	v.SetDefault("recorder.parquet_compression", "SNAPPY")
	v.SetDefault("recorder.tail", 5)
	v.SetDefault("recorder.clear_screen", false)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "gait")
	v.SetDefault("mongo.collection", "sensor_data")
	v.SetDefault("mongo.timeout", "10s")

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.measurement", "gait_stats")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "gait:latest")
	v.SetDefault("redis.channel", "gait:processed")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "gait-processed")
	v.SetDefault("kafka.dlq_topic", "gait-processed-dlq")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "gait-processor")
	v.SetDefault("mqtt.topic", "gait/processed")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_tls", false)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.base_path", "gait-logs")
}

// NewViper returns a viper instance with defaults and GAIT_* environment overrides.
// An empty path skips the config file.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("GAIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return v, nil
}

type errList []string

func (e *errList) addf(format string, a ...any) { *e = append(*e, fmt.Sprintf(format, a...)) }
func (e *errList) add(msg string)               { *e = append(*e, msg) }
func (e *errList) has() bool                    { return len(*e) > 0 }

func ensureOneOf(key, val string, allowed []string, errs *errList) {
	for _, a := range allowed {
		if val == a {
			return
		}
	}
	errs.addf("%s invalid (allowed: %s): %q", key, strings.Join(allowed, ", "), val)
}

// Load unmarshals v and checks the keys both binaries share.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.Kafka.Brokers = parseBrokers(cfg.Kafka.Brokers)

	var errs errList
	cfg.validateCommon(&errs)
	if errs.has() {
		return nil, errs.asError()
	}
	return &cfg, nil
}

// LoadProcessor is Load plus the sinks the processor needs.
func LoadProcessor(v *viper.Viper) (*Config, error) {
	cfg, err := Load(v)
	if err != nil {
		return nil, err
	}
	var errs errList
	cfg.validateProcessor(&errs)
	if errs.has() {
		return nil, errs.asError()
	}
	return cfg, nil
}

func (e errList) asError() error {
	return errors.Errorf("invalid configuration: %s", strings.Join(e, "; "))
}

// parseBrokers accepts both list values and a single comma separated string from the environment.
func parseBrokers(in []string) []string {
	var out []string
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if s := strings.TrimSpace(b); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (c *Config) validateCommon(errs *errList) {
	u, err := url.Parse(c.WS.URL)
	switch {
	case strings.TrimSpace(c.WS.URL) == "":
		errs.add("ws.url is required")
	case err != nil:
		errs.addf("ws.url invalid: %v", err)
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs.addf("ws.url must use ws or wss, got %q", u.Scheme)
	}
	if strings.TrimSpace(c.WS.Role) == "" {
		errs.add("ws.role is required")
	}
	if c.WS.HandshakeTimeout <= 0 {
		errs.add("ws.handshake_timeout must be > 0")
	}
	if c.WS.WriteTimeout <= 0 {
		errs.add("ws.write_timeout must be > 0")
	}
	if c.WS.ReconnectDelay <= 0 {
		errs.add("ws.reconnect_delay must be > 0")
	}

	ensureOneOf("log.format", c.Log.Format, []string{"console", "json"}, errs)

	ensureOneOf("recorder.format", c.Recorder.Format, []string{"csv", "parquet", "both"}, errs)
	ensureOneOf("recorder.parquet_compression", c.Recorder.ParquetCompression, []string{"SNAPPY", "ZSTD", "GZIP"}, errs)
	if c.Recorder.Tail < 0 {
		errs.add("recorder.tail must be >= 0")
	}

	if c.S3.Enabled() {
		if c.S3.Bucket == "" {
			errs.add("s3.bucket is required when s3.endpoint is set")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs.add("s3.access_key and s3.secret_key are required when s3.endpoint is set")
		}
	}
}

func (c *Config) validateProcessor(errs *errList) {
	if c.Mongo.URI == "" {
		errs.add("mongo.uri is required")
	}
	if c.Mongo.Database == "" || c.Mongo.Collection == "" {
		errs.add("mongo.database and mongo.collection are required")
	}
	if c.Mongo.Timeout <= 0 {
		errs.add("mongo.timeout must be > 0")
	}
	if c.Influx.Enabled() && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs.add("influx.org and influx.bucket are required when influx.url is set")
	}
	if c.Kafka.Enabled() {
		if c.Kafka.Topic == "" || c.Kafka.DLQTopic == "" {
			errs.add("kafka.topic and kafka.dlq_topic are required when kafka.brokers is set")
		}
		if c.Kafka.Partitions <= 0 {
			errs.add("kafka.partitions must be > 0")
		}
		if c.Kafka.ReplicationFactor <= 0 {
			errs.add("kafka.replication_factor must be > 0")
		}
		if c.Kafka.ReplicationFactor > len(c.Kafka.Brokers) {
			errs.add("kafka.replication_factor cannot exceed the number of brokers")
		}
	}
	if c.MQTT.Enabled() {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs.addf("mqtt.qos invalid (0..2): %d", c.MQTT.QoS)
		}
		if c.MQTT.Topic == "" {
			errs.add("mqtt.topic is required when mqtt.broker_url is set")
		}
	}
}
