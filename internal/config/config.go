package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcheng-dev/botconsole/internal/risk"
	"github.com/rcheng-dev/botconsole/internal/transport"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

type Poll struct {
	FastIntervalMs int `yaml:"fast_interval_ms"` // price/signal/position
	// SlowIntervalMs is not a config surface: the heavy cycle is pinned
	// to 30s in applyDefaults and a yaml value for it is ignored.
	SlowIntervalMs int `yaml:"-"` // equity/accuracy/logs
}

type Push struct {
	Enabled bool             `yaml:"enabled"`
	Wire    transport.Config `yaml:"wire"`
}

type Equity struct {
	DefaultRange string `yaml:"default_range"` // 1d | 7d | 30d | all
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Upstream upstream.Config `yaml:"upstream"`
	Poll     Poll            `yaml:"poll"`
	Push     Push            `yaml:"push"`
	Risk     risk.Config     `yaml:"risk"`
	Equity   Equity          `yaml:"equity"`
	Server   Server          `yaml:"server"`
}

// Load reads the YAML config and applies environment overrides. An empty
// path skips the file and runs on env vars and defaults alone. A .env
// file in the working directory is honored when present; missing is fine.
func Load(path string) (Root, error) {
	_ = godotenv.Load()

	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&c)
	applyDefaults(&c)
	return c, nil
}

func applyEnv(c *Root) {
	if v := os.Getenv("BOTCONSOLE_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("BOTCONSOLE_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("BOTCONSOLE_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func applyDefaults(c *Root) {
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://127.0.0.1:5000"
	}
	if c.Poll.FastIntervalMs <= 0 {
		c.Poll.FastIntervalMs = 2000
	}
	// The slow cadence is fixed: the aggregate endpoints are expensive
	// upstream and 30s matches what they can sustain.
	c.Poll.SlowIntervalMs = 30000

	if c.Push.Wire.BaseURL == "" {
		c.Push.Wire.BaseURL = c.Upstream.BaseURL
	}
	if c.Push.Wire.Transport == "" {
		c.Push.Wire.Transport = "sse"
	}
	if c.Risk.ContractMultiplier <= 0 {
		c.Risk.ContractMultiplier = risk.DefaultContractMultiplier
	}
	if c.Equity.DefaultRange == "" {
		c.Equity.DefaultRange = "1d"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
}
