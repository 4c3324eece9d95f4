package config

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Ratio     RatioConfig     `mapstructure:"ratio"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers  int    `mapstructure:"num_workers"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type GatewayConfig struct {
	// ValidTopics are the feeds a websocket client may subscribe to
	ValidTopics  []string `mapstructure:"valid_topics"`
	TableMaxRows int      `mapstructure:"table_max_rows"`
}

// RatioConfig externalizes the alert band. Bounds are 1 +/- Delta.
type RatioConfig struct {
	InstrumentA string  `mapstructure:"instrument_a"`
	InstrumentB string  `mapstructure:"instrument_b"`
	Delta       float64 `mapstructure:"delta"`
}

// GeneratorConfig drives the simulated feed for the two ratio instruments
type GeneratorConfig struct {
	BasePriceA float64 `mapstructure:"base_price_a"`
	BasePriceB float64 `mapstructure:"base_price_b"`
	TickMillis int     `mapstructure:"tick_millis"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so viper sees it as real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not reach nested keys during Unmarshal
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "processor.num_workers", "processor.metrics_addr")
	bindEnv(v, "gateway.valid_topics", "gateway.table_max_rows")
	bindEnv(v, "ratio.instrument_a", "ratio.instrument_b", "ratio.delta")
	bindEnv(v, "generator.base_price_a", "generator.base_price_b", "generator.tick_millis")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_snapshots")
	v.SetDefault("kafka.group_id", "ratio-processor-group")

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.metrics_addr", ":9102")

	v.SetDefault("gateway.valid_topics", []string{"ABC", "DEF", "ratio"})
	v.SetDefault("gateway.table_max_rows", 5000)

	v.SetDefault("ratio.instrument_a", "ABC")
	v.SetDefault("ratio.instrument_b", "DEF")
	v.SetDefault("ratio.delta", 0.05)

	v.SetDefault("generator.base_price_a", 100.0)
	v.SetDefault("generator.base_price_b", 100.0)
	v.SetDefault("generator.tick_millis", 500)
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor.num_workers must be positive, got %d", c.Processor.NumWorkers)
	}
	if c.Ratio.InstrumentA == "" || c.Ratio.InstrumentB == "" {
		return fmt.Errorf("ratio instruments cannot be empty")
	}
	if c.Ratio.InstrumentA == c.Ratio.InstrumentB {
		return fmt.Errorf("ratio instruments must differ, both are %q", c.Ratio.InstrumentA)
	}
	if math.IsNaN(c.Ratio.Delta) || c.Ratio.Delta < 0 || c.Ratio.Delta >= 1 {
		return fmt.Errorf("ratio.delta must be in [0, 1), got %v", c.Ratio.Delta)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
