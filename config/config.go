package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Compressor CompressorConfig `mapstructure:"compressor"`
	Sensors    []SensorConfig   `mapstructure:"sensors"`
	Poll       PollConfig       `mapstructure:"poll"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Timescale  TimescaleConfig  `mapstructure:"timescale"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
}

// CompressorConfig holds the relay configuration. Pin is the BCM GPIO
// number, not the physical header pin.
type CompressorConfig struct {
	Pin      *int          `mapstructure:"pin"`
	MinRun   time.Duration `mapstructure:"min_run"`
	Simulate bool          `mapstructure:"simulate"`

	// RefuseUnknownStart refuses stops while the activation time is
	// unknown, e.g. when the relay was already on at startup.
	RefuseUnknownStart bool `mapstructure:"refuse_unknown_start"`
}

// SensorConfig describes one temperature sensor
type SensorConfig struct {
	Name    string            `mapstructure:"name"`
	Kind    models.SensorKind `mapstructure:"kind"`
	Bus     string            `mapstructure:"bus"`
	Address uint16            `mapstructure:"address"`
	Device  string            `mapstructure:"device"`
	// Value is the initial reading of a static sensor
	Value float64 `mapstructure:"value"`
}

// PollConfig holds the control loop cadence
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// MQTTConfig holds MQTT connection configuration
type MQTTConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Broker       string `mapstructure:"broker"`
	Port         int    `mapstructure:"port"`
	ClientID     string `mapstructure:"client_id"`
	StateTopic   string `mapstructure:"state_topic"`
	CommandTopic string `mapstructure:"command_topic"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// TimescaleConfig holds Timescale specific configuration
type TimescaleConfig struct {
	TableName   string `mapstructure:"table_name"`
	EventsTable string `mapstructure:"events_table"`
}

// KafkaConfig holds the Kafka telemetry sink configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// Key identifies this freezer. It keys every message, so one
	// freezer's telemetry stays on one partition.
	Key string `mapstructure:"key"`
}

// HTTPConfig holds the HTTP API configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// envBindings maps configuration keys to environment variables
var envBindings = map[string]string{
	"compressor.pin":                  "COMPRESSOR_PIN",
	"compressor.min_run":              "COMPRESSOR_MIN_RUN",
	"compressor.simulate":             "COMPRESSOR_SIMULATE",
	"compressor.refuse_unknown_start": "COMPRESSOR_REFUSE_UNKNOWN_START",
	"poll.interval":                   "POLL_INTERVAL",
	"mqtt.enabled":                    "MQTT_ENABLED",
	"mqtt.broker":                     "MQTT_BROKER",
	"mqtt.port":                       "MQTT_PORT",
	"mqtt.client_id":                  "MQTT_CLIENT_ID",
	"mqtt.state_topic":                "MQTT_STATE_TOPIC",
	"mqtt.command_topic":              "MQTT_COMMAND_TOPIC",
	"mqtt.username":                   "MQTT_USERNAME",
	"mqtt.password":                   "MQTT_PASSWORD",
	"database.enabled":                "DATABASE_ENABLED",
	"database.host":                   "DATABASE_HOST",
	"database.port":                   "DATABASE_PORT",
	"database.user":                   "DATABASE_USER",
	"database.password":               "DATABASE_PASSWORD",
	"database.dbname":                 "DATABASE_DBNAME",
	"database.sslmode":                "DATABASE_SSLMODE",
	"timescale.table_name":            "TIMESCALE_TABLE_NAME",
	"timescale.events_table":          "TIMESCALE_EVENTS_TABLE",
	"kafka.enabled":                   "KAFKA_ENABLED",
	"kafka.brokers":                   "KAFKA_BROKERS",
	"kafka.topic":                     "KAFKA_TOPIC",
	"kafka.key":                       "KAFKA_KEY",
	"http.enabled":                    "HTTP_ENABLED",
	"http.addr":                       "HTTP_ADDR",
	"log.level":                       "LOG_LEVEL",
	"log.file":                        "LOG_FILE",
}

// LoadConfig loads configuration from file and/or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values first (lowest precedence)
	setDefaults(v, GetDefaultConfig())

	// Try to load from config file (medium precedence)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Environment variables (highest precedence), e.g. mqtt.broker -> MQTT_BROKER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Info("no config file found, using environment variables and defaults", "path", path)
	} else {
		slog.Info("loaded config file", "file", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("compressor.min_run", d.Compressor.MinRun)
	v.SetDefault("compressor.simulate", d.Compressor.Simulate)
	v.SetDefault("compressor.refuse_unknown_start", d.Compressor.RefuseUnknownStart)

	sensors := make([]map[string]any, 0, len(d.Sensors))
	for _, s := range d.Sensors {
		sensors = append(sensors, map[string]any{
			"name":    s.Name,
			"kind":    string(s.Kind),
			"bus":     s.Bus,
			"address": s.Address,
			"device":  s.Device,
		})
	}
	v.SetDefault("sensors", sensors)

	v.SetDefault("poll.interval", d.Poll.Interval)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.port", d.MQTT.Port)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.state_topic", d.MQTT.StateTopic)
	v.SetDefault("mqtt.command_topic", d.MQTT.CommandTopic)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)

	v.SetDefault("timescale.table_name", d.Timescale.TableName)
	v.SetDefault("timescale.events_table", d.Timescale.EventsTable)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.key", d.Kafka.Key)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.addr", d.HTTP.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// GetDefaultConfig returns default configuration. The relay pin has no
// default and must be configured.
func GetDefaultConfig() *Config {
	return &Config{
		Compressor: CompressorConfig{
			MinRun: compressor.DefaultMinRun,
		},
		Sensors: []SensorConfig{
			{Name: "am2320", Kind: models.KindI2C, Bus: "1", Address: 0x5C},
			{Name: "ds18b20", Kind: models.KindOneWire},
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:       "tcp://localhost",
			Port:         1883,
			ClientID:     "freezer-control",
			StateTopic:   "freezer/state",
			CommandTopic: "freezer/command",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "iot_data",
			SSLMode:  "disable",
		},
		Timescale: TimescaleConfig{
			TableName:   "freezer_readings",
			EventsTable: "freezer_events",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "freezer.telemetry",
			Key:     "freezer",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports configuration the controller cannot run with
func (c *Config) Validate() error {
	if c.Compressor.Pin == nil && !c.Compressor.Simulate {
		return fmt.Errorf("%w: set compressor.pin (COMPRESSOR_PIN)", compressor.ErrNoActuatorPin)
	}
	if c.Compressor.MinRun <= 0 {
		return fmt.Errorf("compressor.min_run must be positive, got %s", c.Compressor.MinRun)
	}
	if c.Kafka.Enabled && c.Kafka.Key == "" {
		return errors.New("kafka.key is required when kafka is enabled")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensors[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case models.KindI2C, models.KindOneWire, models.KindStatic:
		default:
			return fmt.Errorf("sensors[%d] %q: unknown kind %q", i, s.Name, s.Kind)
		}
	}
	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	slog.Info("database connection",
		"host", c.Database.Host,
		"port", c.Database.Port,
		"user", c.Database.User,
		"dbname", c.Database.DBName,
		"sslmode", c.Database.SSLMode,
	)
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	brokerURL := c.MQTT.Broker

	// If the URL already has a protocol, use it as is
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://"} {
		if strings.HasPrefix(brokerURL, scheme) {
			// If there's no port in the URL, add the default port
			if !strings.Contains(brokerURL[len(scheme):], ":") {
				brokerURL = fmt.Sprintf("%s:%d", brokerURL, c.MQTT.Port)
			}
			return brokerURL
		}
	}

	// Handle http:// and https:// protocols by converting to mqtt protocols
	if host, ok := strings.CutPrefix(brokerURL, "http://"); ok {
		return "tcp://" + c.withPort(host)
	}
	if host, ok := strings.CutPrefix(brokerURL, "https://"); ok {
		return "ssl://" + c.withPort(host)
	}

	// If no protocol is specified, use tcp:// with the configured port
	slog.Warn("no protocol in broker URL, defaulting to tcp://", "broker", brokerURL)
	return fmt.Sprintf("tcp://%s:%d", brokerURL, c.MQTT.Port)
}

func (c *Config) withPort(host string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return fmt.Sprintf("%s:%d", host, c.MQTT.Port)
}
