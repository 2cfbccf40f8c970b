// Package config loads and watches the bot's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"cinebot/pkg/logx"
)

type Config struct {
	Telegram  Telegram    `yaml:"telegram"`
	Operator  Operator    `yaml:"operator"`
	Quota     Quota       `yaml:"quota"`
	Broadcast Broadcast   `yaml:"broadcast"`
	Gate      Gate        `yaml:"gate"`
	Storage   Storage     `yaml:"storage"`
	Notify    Notify      `yaml:"notify"`
	Scheduler Scheduler   `yaml:"scheduler"`
	Log       logx.Config `yaml:"log"`
}

type Telegram struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

type Operator struct {
	// AdminIDs may ingest media, broadcast, and set overrides.
	AdminIDs []int64 `yaml:"admin_ids"`
}

type Quota struct {
	DefaultLimit int `yaml:"default_limit"`
}

type Broadcast struct {
	WaveSize    int      `yaml:"wave_size"`
	WaveDelay   Duration `yaml:"wave_delay"`
	SendTimeout Duration `yaml:"send_timeout"`
}

type Gate struct {
	// RequiredChannels must all be joined before a media request is served.
	RequiredChannels []string `yaml:"required_channels"`
	LookupTimeout    Duration `yaml:"lookup_timeout"`
}

type Storage struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

type Notify struct {
	ChatID     int64 `yaml:"chat_id"`
	RatePerMin int   `yaml:"rate_per_min"`
}

type Scheduler struct {
	Timezone   string `yaml:"timezone"`
	DigestSpec string `yaml:"digest_spec"` // cron spec for the daily digest
	SweepSpec  string `yaml:"sweep_spec"`  // cron spec for the quota sweep
}

// Duration decodes "1s"/"500ms" strings; bare integers are seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		dd, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(dd)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration node: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads, strictly decodes, defaults, and validates the config file.
// Unknown keys are rejected so typos fail fast.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(b)
}

func parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = Duration(10 * time.Second)
	}
	if c.Quota.DefaultLimit <= 0 {
		c.Quota.DefaultLimit = 5
	}
	if c.Broadcast.WaveSize <= 0 {
		c.Broadcast.WaveSize = 25
	}
	if c.Broadcast.WaveDelay <= 0 {
		c.Broadcast.WaveDelay = Duration(time.Second)
	}
	if c.Broadcast.SendTimeout <= 0 {
		c.Broadcast.SendTimeout = Duration(10 * time.Second)
	}
	if c.Gate.LookupTimeout <= 0 {
		c.Gate.LookupTimeout = Duration(5 * time.Second)
	}
	if c.Scheduler.DigestSpec == "" {
		c.Scheduler.DigestSpec = "0 9 * * *"
	}
	if c.Scheduler.SweepSpec == "" {
		c.Scheduler.SweepSpec = "30 0 * * *"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/cinebot.db"
	}
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return errors.New("config: telegram.token is required")
	}
	if len(c.Operator.AdminIDs) == 0 {
		return errors.New("config: operator.admin_ids must not be empty")
	}
	return nil
}
