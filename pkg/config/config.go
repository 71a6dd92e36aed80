package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Simulation struct {
		SymbolSet []string       `yaml:"symbols"`
		Timeframe string         `yaml:"timeframe"`
		Tiers     []TierConfig   `yaml:"leverage_tiers"`
		Margin    MarginConfig   `yaml:"maintenance_margin"`
		Bucket    float64        `yaml:"price_bucket"`
		Side      SidePolicyConf `yaml:"side_policy"`
		Closure   string         `yaml:"closure_policy"` // proportional | nearest_first
		CacheTTL  time.Duration  `yaml:"cache_ttl"`
	} `yaml:"simulation"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic"`
		BarsTopic     string   `yaml:"bars_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Backfill struct {
		Enabled   bool   `yaml:"enabled"`
		QueueName string `yaml:"queue_name"`
		Workers   int    `yaml:"workers"`
	} `yaml:"backfill"`
}

// TierConfig is one row of the leverage distribution.
type TierConfig struct {
	Leverage int     `yaml:"leverage"`
	Weight   float64 `yaml:"weight"`
}

// MarginConfig selects between a flat maintenance margin rate and a
// notional-tiered table. URL points to an external collaborator that
// serves the table; when set it takes precedence over the inline table.
type MarginConfig struct {
	Rate  float64            `yaml:"rate"`
	Table []MarginTierConfig `yaml:"table"`
	URL   string             `yaml:"url"`
}

type MarginTierConfig struct {
	MaxNotional float64 `yaml:"max_notional"`
	Rate        float64 `yaml:"rate"`
}

// SidePolicyConf configures side inference for synthesized positions.
type SidePolicyConf struct {
	Kind string  `yaml:"kind"` // candle_direction
	Bias float64 `yaml:"bias"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Simulation.SymbolSet = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_SNAPSHOT_TOPIC"); v != "" {
		c.Kafka.SnapshotTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Simulation.Timeframe == "" {
		c.Simulation.Timeframe = "5m"
	}
	if len(c.Simulation.Tiers) == 0 {
		c.Simulation.Tiers = []TierConfig{
			{Leverage: 5, Weight: 0.15},
			{Leverage: 10, Weight: 0.30},
			{Leverage: 25, Weight: 0.25},
			{Leverage: 50, Weight: 0.20},
			{Leverage: 100, Weight: 0.10},
		}
	}
	if c.Simulation.Margin.Rate == 0 && len(c.Simulation.Margin.Table) == 0 && c.Simulation.Margin.URL == "" {
		c.Simulation.Margin.Rate = 0.004
	}
	if c.Simulation.Bucket == 0 {
		c.Simulation.Bucket = 100
	}
	if c.Simulation.Side.Kind == "" {
		c.Simulation.Side.Kind = "candle_direction"
	}
	if c.Simulation.Side.Bias == 0 {
		c.Simulation.Side.Bias = 0.7
	}
	if c.Simulation.Closure == "" {
		c.Simulation.Closure = "proportional"
	}
	if c.Simulation.CacheTTL == 0 {
		c.Simulation.CacheTTL = 15 * time.Second
	}
	if c.Backfill.QueueName == "" {
		c.Backfill.QueueName = "liqmap:backfill"
	}
	if c.Backfill.Workers == 0 {
		c.Backfill.Workers = 1
	}
}

// Validate checks if the configuration is valid. All simulation parameters
// fail fast here, before any tick is processed.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Simulation.SymbolSet) == 0 {
		return fmt.Errorf("simulation.symbols cannot be empty")
	}

	sum := 0.0
	for _, t := range c.Simulation.Tiers {
		if t.Leverage <= 0 {
			return fmt.Errorf("simulation.leverage_tiers: non-positive leverage %d", t.Leverage)
		}
		if t.Weight < 0 {
			return fmt.Errorf("simulation.leverage_tiers: negative weight for %dx", t.Leverage)
		}
		sum += t.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("simulation.leverage_tiers: weights sum to %v, must sum to 1.0", sum)
	}

	if r := c.Simulation.Margin.Rate; len(c.Simulation.Margin.Table) == 0 && (r < 0 || r >= 1) {
		return fmt.Errorf("simulation.maintenance_margin.rate %v outside [0,1)", r)
	}
	for _, t := range c.Simulation.Margin.Table {
		if t.Rate < 0 || t.Rate >= 1 {
			return fmt.Errorf("simulation.maintenance_margin.table: rate %v outside [0,1)", t.Rate)
		}
	}
	if c.Simulation.Bucket <= 0 {
		return fmt.Errorf("simulation.price_bucket must be > 0, got %v", c.Simulation.Bucket)
	}
	if c.Simulation.Side.Kind != "candle_direction" {
		return fmt.Errorf("simulation.side_policy.kind %q unsupported", c.Simulation.Side.Kind)
	}
	if c.Simulation.Closure != "proportional" && c.Simulation.Closure != "nearest_first" {
		return fmt.Errorf("simulation.closure_policy must be 'proportional' or 'nearest_first', got %q", c.Simulation.Closure)
	}
	return nil
}
