// Package config loads the notification service configuration from defaults,
// an optional YAML file, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"iot-notification-service/internal/infrastructure/logger"
)

const (
	EnvPrefix         = "NOTIFICATION"
	DefaultConfigName = "notification-service"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	SSE       SSEConfig       `mapstructure:"sse" yaml:"sse"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Output     string `mapstructure:"output" yaml:"output"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type BusConfig struct {
	// Driver selects the message bus: redis, mqtt or memory.
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Channels ChannelsConfig `mapstructure:"channels" yaml:"channels"`
}

type RedisConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker" yaml:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password,omitempty"`
	QoS            int           `mapstructure:"qos" yaml:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

type ChannelsConfig struct {
	DeviceEvents  string `mapstructure:"device_events" yaml:"device_events"`
	Notifications string `mapstructure:"notifications" yaml:"notifications"`
}

type WebSocketConfig struct {
	SendBufferSize int           `mapstructure:"send_buffer_size" yaml:"send_buffer_size"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	WriteWait      time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
}

type SSEConfig struct {
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
}

// legacyEnv maps keys to the environment variable names the other services
// of the platform already export.
var legacyEnv = map[string]string{
	"bus.redis.url": "REDIS_URI",
	"server.port":   "NOTIFICATION_SERVICE_PORT",
	"log.level":     "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3003")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Streaming responses (SSE) must not be cut by a write deadline.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("bus.driver", "redis")
	v.SetDefault("bus.redis.url", "redis://localhost:6379")
	v.SetDefault("bus.redis.dial_timeout", 5*time.Second)
	v.SetDefault("bus.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("bus.mqtt.client_id", "notification-service")
	v.SetDefault("bus.mqtt.qos", 1)
	v.SetDefault("bus.mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("bus.channels.device_events", "device-events")
	v.SetDefault("bus.channels.notifications", "notifications")

	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)

	v.SetDefault("sse.keep_alive_interval", 30*time.Second)
}

// Load builds a Config. configFile may be empty, in which case
// ./notification-service.yaml is used when present.
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.File = v.ConfigFileUsed()

	// A bare port (the platform convention) overrides the listen address.
	if port := v.GetString("server.port"); port != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}

	switch c.Bus.Driver {
	case "redis":
		if c.Bus.Redis.URL == "" {
			return errors.New("config: bus.redis.url is required for the redis driver")
		}
	case "mqtt":
		if c.Bus.MQTT.Broker == "" {
			return errors.New("config: bus.mqtt.broker is required for the mqtt driver")
		}
		if c.Bus.MQTT.QoS < 0 || c.Bus.MQTT.QoS > 2 {
			return fmt.Errorf("config: bus.mqtt.qos must be 0, 1 or 2, got %d", c.Bus.MQTT.QoS)
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown bus.driver %q", c.Bus.Driver)
	}

	if c.Bus.Channels.DeviceEvents == "" || c.Bus.Channels.Notifications == "" {
		return errors.New("config: bus channel names must not be empty")
	}
	if c.Bus.Channels.DeviceEvents == c.Bus.Channels.Notifications {
		return errors.New("config: bus channel names must differ")
	}

	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("config: websocket.send_buffer_size must be positive, got %d", c.WebSocket.SendBufferSize)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// LoggerConfig converts the log section into the logger package's config,
// keeping the default static fields.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.NewDefaultConfig()
	if level, err := logger.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Log.Format
	lc.Output = c.Log.Output
	lc.FilePath = c.Log.FilePath
	lc.MaxSize = c.Log.MaxSize
	lc.MaxBackups = c.Log.MaxBackups
	lc.MaxAge = c.Log.MaxAge
	lc.Compress = c.Log.Compress
	return lc
}

// loadEnvFiles loads .env then .env.local. godotenv never overrides
// variables already present in the environment.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	if masked.Bus.MQTT.Password != "" {
		masked.Bus.MQTT.Password = "****"
	}
	masked.Bus.Redis.URL = maskURLPassword(masked.Bus.Redis.URL)
	return yaml.Marshal(&masked)
}

func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
