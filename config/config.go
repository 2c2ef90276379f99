package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/infra/mqtt"
	"github.com/kilianp07/parkcast/infra/redis"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	MQTT        mqtt.Config       `json:"mqtt"`
	Calibration CalibrationConfig `json:"calibration"`
	Prediction  PredictionConfig  `json:"prediction"`
	History     HistoryConfig     `json:"history"`
	Metrics     metrics.Config    `json:"metrics"`
	Redis       redis.Config      `json:"redis"`
	Report      ReportConfig      `json:"report"`
	Sentry      SentryConfig      `json:"sentry"`
}

// Load reads path (YAML or JSON) and applies K_ prefixed environment
// overrides, e.g. K_SERVER__ADDR=:9000. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	c.Prediction.SetDefaults()
	c.History.SetDefaults()
	if c.Redis.Enabled() {
		c.Redis.SetDefaults()
	}
	c.Report.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	return errors.Join(
		c.Server.Validate(),
		c.MQTT.Validate(),
		c.Prediction.Validate(),
		c.History.Validate(),
		c.Redis.Validate(),
		c.Report.Validate(),
		c.Sentry.Validate(),
	)
}
