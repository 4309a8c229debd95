package config

import (
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\npipeline:\n  entities: [nbrb, alfa_bank]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 || c.Pipeline.Folds != 5 || c.Pipeline.Decay != 0.9 {
		t.Fatalf("defaults not applied: %+v", c.Pipeline)
	}
	if c.Storage.ModelStore != "file" || c.Kafka.Topics.Runs != "ratecast.runs" {
		t.Fatalf("unexpected storage defaults")
	}
	if c.Telegram.MinInterval != 300*time.Millisecond {
		t.Fatalf("min interval %v", c.Telegram.MinInterval)
	}
	if !c.Metrics.Enabled {
		t.Fatalf("metrics should default to enabled")
	}
}

func TestParseExplicitFalseWins(t *testing.T) {
	c, err := Parse([]byte("metrics:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Metrics.Enabled {
		t.Fatalf("explicit false overridden by default")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad decay":                    "pipeline:\n  decay: 1.5\n",
		"bad width":                    "pipeline:\n  window_widths: [5, 1]\n",
		"postgres no dsn":              "storage:\n  price_source: postgres\n",
		"kafka no brokers":             "kafka:\n  enabled: true\n",
		"telegram no token":            "telegram:\n  enabled: true\n",
		"unknown model store":          "storage:\n  model_store: s3\n",
		"redis models on memory cache": "storage:\n  model_store: redis\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"RATECAST_ENTITIES": "nbrb, belarusbank ,",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"SERVER_PORT":       "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })
	if len(c.Pipeline.Entities) != 2 || c.Pipeline.Entities[1] != "belarusbank" {
		t.Fatalf("entities %v", c.Pipeline.Entities)
	}
	if len(c.Kafka.Brokers) != 2 || c.Server.Port != 9090 {
		t.Fatalf("env not applied: %v %d", c.Kafka.Brokers, c.Server.Port)
	}
}
