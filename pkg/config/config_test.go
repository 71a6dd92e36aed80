package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
environment: test
simulation:
  symbols: [BTCUSDT, ETHUSDT]
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Simulation.Timeframe != "5m" {
		t.Fatalf("default timeframe %q, want 5m", c.Simulation.Timeframe)
	}
	if c.Simulation.Bucket != 100 {
		t.Fatalf("default bucket %v, want 100", c.Simulation.Bucket)
	}
	if c.Simulation.Side.Kind != "candle_direction" || c.Simulation.Side.Bias != 0.7 {
		t.Fatalf("default side policy %+v", c.Simulation.Side)
	}
	if c.Simulation.Closure != "proportional" {
		t.Fatalf("default closure %q", c.Simulation.Closure)
	}
	if c.Simulation.Margin.Rate != 0.004 {
		t.Fatalf("default margin rate %v", c.Simulation.Margin.Rate)
	}

	sum := 0.0
	for _, tier := range c.Simulation.Tiers {
		sum += tier.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("default tier weights sum to %v", sum)
	}
	if c.Backfill.QueueName != "liqmap:backfill" {
		t.Fatalf("default queue name %q", c.Backfill.QueueName)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing environment",
			yaml: "simulation:\n  symbols: [BTCUSDT]\n",
			want: "environment",
		},
		{
			name: "no symbols",
			yaml: "environment: test\n",
			want: "symbols",
		},
		{
			name: "tier weights off",
			yaml: minimalYAML + `  leverage_tiers:
    - {leverage: 10, weight: 0.5}
    - {leverage: 25, weight: 0.4}
`,
			want: "sum",
		},
		{
			name: "negative leverage",
			yaml: minimalYAML + `  leverage_tiers:
    - {leverage: -5, weight: 1.0}
`,
			want: "leverage",
		},
		{
			name: "margin rate out of range",
			yaml: minimalYAML + "  maintenance_margin:\n    rate: 1.5\n",
			want: "rate",
		},
		{
			name: "bad bucket",
			yaml: minimalYAML + "  price_bucket: -10\n",
			want: "price_bucket",
		},
		{
			name: "unknown closure policy",
			yaml: minimalYAML + "  closure_policy: lifo\n",
			want: "closure_policy",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatalf("config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SOLUSDT")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis-test:6379")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Simulation.SymbolSet) != 1 || c.Simulation.SymbolSet[0] != "SOLUSDT" {
		t.Fatalf("symbols override %v", c.Simulation.SymbolSet)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers override %v", c.Kafka.Brokers)
	}
	if c.Redis.Addr != "redis-test:6379" {
		t.Fatalf("redis override %q", c.Redis.Addr)
	}
}
