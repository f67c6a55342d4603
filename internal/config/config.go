package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	MDNS        MDNSConfig        `mapstructure:"mdns"`
	Interaction InteractionConfig `mapstructure:"interaction"`
	TaskQueue   TaskQueueConfig   `mapstructure:"taskqueue"`
	Automation  AutomationConfig  `mapstructure:"automation"`
}

type AppConfig struct {
	Name         string             `mapstructure:"name"`
	HTTPAddr     string             `mapstructure:"httpAddr"`
	LogLevel     string             `mapstructure:"logLevel"`
	Timezone     string             `mapstructure:"timezone"`
	RemoteAccess RemoteAccessConfig `mapstructure:"remoteAccess"`
}

// RemoteAccessConfig points the relay agent at an outside server
type RemoteAccessConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	AgentID string `mapstructure:"agentId"`
}

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	PostgresURL string        `mapstructure:"postgresUrl"`
	RedisPrefix string        `mapstructure:"redisPrefix"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker"`
	ClientID       string `mapstructure:"clientId"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	EventsTopic    string `mapstructure:"eventsTopic"`
	DecisionsTopic string `mapstructure:"decisionsTopic"`
	QoS            byte   `mapstructure:"qos"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	// PairingHash is a bcrypt hash of the pairing passphrase. Empty leaves the API open.
	PairingHash string        `mapstructure:"pairingHash"`
	TTL         time.Duration `mapstructure:"ttl"`
	Issuer      string        `mapstructure:"issuer"`
}

type MDNSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
}

type InteractionConfig struct {
	ReasoningCapacity int           `mapstructure:"reasoningCapacity"`
	ProcessingTimeout time.Duration `mapstructure:"processingTimeout"`
	ExecutingTimeout  time.Duration `mapstructure:"executingTimeout"`
	WatchdogInterval  time.Duration `mapstructure:"watchdogInterval"`
	BroadcastDebounce time.Duration `mapstructure:"broadcastDebounce"`
	LoopBuffer        int           `mapstructure:"loopBuffer"`
}

type TaskQueueConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

type AutomationConfig struct {
	SchedulerEnabled bool `mapstructure:"schedulerEnabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "artemis")
	v.SetDefault("app.httpAddr", ":5069")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.timezone", "Local")
	v.SetDefault("app.remoteAccess.enabled", false)
	v.SetDefault("app.remoteAccess.url", "")
	v.SetDefault("app.remoteAccess.agentId", "")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "data/artemis.db")
	v.SetDefault("storage.postgresUrl", "")
	v.SetDefault("storage.redisPrefix", "artemis:partition:")
	v.SetDefault("storage.debounce", 500*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientId", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.eventsTopic", "artemis/mcp/events")
	v.SetDefault("mqtt.decisionsTopic", "artemis/mcp/decisions")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.pairingHash", "")
	v.SetDefault("jwt.ttl", 720*time.Hour)
	v.SetDefault("jwt.issuer", "artemis")

	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.name", "artemis.local")

	v.SetDefault("interaction.reasoningCapacity", 20)
	v.SetDefault("interaction.processingTimeout", 30*time.Second)
	v.SetDefault("interaction.executingTimeout", 60*time.Second)
	v.SetDefault("interaction.watchdogInterval", time.Second)
	v.SetDefault("interaction.broadcastDebounce", 50*time.Millisecond)
	v.SetDefault("interaction.loopBuffer", 64)

	v.SetDefault("taskqueue.enabled", false)
	v.SetDefault("taskqueue.queue", "artemis")
	v.SetDefault("taskqueue.concurrency", 2)

	v.SetDefault("automation.schedulerEnabled", false)
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// LoadConfig reads configuration from flags, environment (ARTEMIS_ prefix),
// .env and an optional config.yaml, in that order of precedence.
func LoadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	fs := pflag.NewFlagSet("artemis", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	fs.String("http-addr", "", "HTTP listen address")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("storage-driver", "", "storage driver (sqlite, redis, postgres, memory)")
	fs.String("storage-path", "", "SQLite database path")
	fs.Bool("mdns", false, "advertise on the local network")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ARTEMIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"app.httpAddr":   "http-addr",
		"app.logLevel":   "log-level",
		"storage.driver": "storage-driver",
		"storage.path":   "storage-path",
		"mdns.enabled":   "mdns",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves app.timezone
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// Validate reports every problem found, joined
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.App.HTTPAddr == "" {
		add("app.httpAddr is required")
	}
	if _, err := c.Location(); err != nil {
		add("app.timezone %q: %v", c.App.Timezone, err)
	}
	if c.App.RemoteAccess.Enabled && (c.App.RemoteAccess.URL == "" || c.App.RemoteAccess.AgentID == "") {
		add("app.remoteAccess needs url and agentId when enabled")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			add("storage.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			add("storage.postgresUrl is required for the postgres driver")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis driver")
		}
	case DriverMemory:
	default:
		add("storage.driver %q is not one of sqlite, redis, postgres, memory", c.Storage.Driver)
	}
	if c.Storage.Debounce < 0 {
		add("storage.debounce must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			add("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.EventsTopic == "" || c.MQTT.DecisionsTopic == "" {
			add("mqtt topics must not be empty")
		}
		if c.MQTT.QoS > 2 {
			add("mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.JWT.PairingHash != "" && len(c.JWT.Secret) < 16 {
		add("jwt.secret must be at least 16 characters when pairing is enabled")
	}
	if c.JWT.TTL <= 0 {
		add("jwt.ttl must be positive")
	}

	if c.MDNS.Enabled && !strings.HasSuffix(c.MDNS.Name, ".local") {
		add("mdns.name must end in .local")
	}

	if c.Interaction.ReasoningCapacity <= 0 {
		add("interaction.reasoningCapacity must be positive")
	}
	if c.Interaction.ProcessingTimeout <= 0 || c.Interaction.ExecutingTimeout <= 0 {
		add("interaction timeouts must be positive")
	}
	if c.Interaction.WatchdogInterval <= 0 {
		add("interaction.watchdogInterval must be positive")
	}

	if c.TaskQueue.Enabled && c.Redis.Addr == "" {
		add("taskqueue requires redis.addr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
