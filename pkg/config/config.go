package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"ratecast.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Pipeline struct {
		Entities     []string `yaml:"entities"`
		WindowWidths []int    `yaml:"window_widths" validate:"omitempty,dive,gte=2"`
		Series       string   `yaml:"series" default:"price_usd_sell"`
		Decay        float64  `yaml:"decay" default:"0.9" validate:"gt=0,lt=1"`
		Folds        int      `yaml:"folds" default:"5" validate:"gte=2"`
	} `yaml:"pipeline"`
	Storage struct {
		PriceSource string `yaml:"price_source" default:"clickhouse" validate:"oneof=clickhouse postgres"`
		ModelStore  string `yaml:"model_store" default:"file" validate:"oneof=file redis"`
		ModelDir    string `yaml:"model_dir" default:"models"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"ratecast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN   string `yaml:"dsn"`
		Table string `yaml:"table" default:"myfin.myfin_raw"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"ratecast"`
		ModelTTL time.Duration `yaml:"model_ttl" default:"720h"`
	} `yaml:"redis"`
	Cache struct {
		Backend     string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		ForecastTTL time.Duration `yaml:"forecast_ttl" default:"5m"`
		MaxItems    int           `yaml:"max_items" default:"1000"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Topics       struct {
			Quotes    string `yaml:"quotes" default:"ratecast.quotes"`
			Runs      string `yaml:"runs" default:"ratecast.runs"`
			Forecasts string `yaml:"forecasts" default:"ratecast.forecasts"`
			Reports   string `yaml:"reports" default:"ratecast.reports"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"ratecast"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"ratecast.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Telegram struct {
		Enabled     bool          `yaml:"enabled"`
		BaseURL     string        `yaml:"base_url" default:"https://api.telegram.org"`
		Token       string        `yaml:"token"`
		ChatID      string        `yaml:"chat_id"`
		MinInterval time.Duration `yaml:"min_interval" default:"300ms"`
		Timeout     time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"telegram"`
	Report struct {
		Enabled     bool   `yaml:"enabled" default:"true"`
		Dir         string `yaml:"dir"`
		HistoryDays []int  `yaml:"history_days"`
		Width       int    `yaml:"width" default:"900"`
		Height      int    `yaml:"height" default:"350"`
	} `yaml:"report"`
	Scheduler struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		At      string `yaml:"at" default:"09:30" validate:"datetime=15:04"`
	} `yaml:"scheduler"`
}

// Load reads a YAML file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a Config from raw YAML.
func Parse(b []byte) (*Config, error) {
	var c Config
	// defaults first so that explicit zero values in the file win
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
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
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(get func(string) string) {
	if v := get("RATECAST_ENTITIES"); v != "" {
		c.Pipeline.Entities = splitList(v)
	}
	if v := get("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := get("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := get("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := get("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := get("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := get("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := get("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := get("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Storage.PriceSource == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when storage.price_source is postgres")
	}
	if c.Storage.ModelStore == "redis" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be redis when storage.model_store is redis")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
