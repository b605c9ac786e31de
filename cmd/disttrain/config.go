package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config configures a worker process. Every field has a
// default except the coordinator address and group name, which
// can also come from the DISTTRAIN_COORDINATOR and
// DISTTRAIN_GROUP environment variables.
type Config struct {
	Coordinator string `toml:"coordinator"`
	Group       string `toml:"group"`
	World       int    `toml:"world"`

	Steps         int     `toml:"steps"`
	ItersPerEpoch int     `toml:"iters_per_epoch"`
	LearningRate  float64 `toml:"learning_rate"`
	Seed          int64   `toml:"seed"`

	// Key is the observation the workers aggregate;
	// AggregatedKey is where the group mean lands. Empty
	// means overwrite Key in place.
	Key           string `toml:"key"`
	AggregatedKey string `toml:"aggregated_key"`
	CommInterval  int    `toml:"comm_interval"`

	// Timeout bounds each collective call.
	Timeout duration `toml:"timeout"`

	// Snapshot, when set, is a path the trainer state is
	// written to at every epoch.
	Snapshot string `toml:"snapshot"`

	// Metrics, when set, is a listen address for a prometheus
	// /metrics endpoint.
	Metrics string `toml:"metrics"`
}

// duration lets TOML files write timeouts like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// DefaultConfig returns the configuration a worker runs with
// when the file leaves everything out.
func DefaultConfig() Config {
	return Config{
		World:         2,
		Steps:         100,
		ItersPerEpoch: 10,
		LearningRate:  0.05,
		Seed:          1,
		Key:           "loss",
		CommInterval:  1,
		Timeout:       duration(30 * time.Second),
	}
}

// LoadConfig reads a TOML file over the defaults. An empty
// path loads the defaults and environment alone.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if cfg.Coordinator == "" {
		cfg.Coordinator = os.Getenv("DISTTRAIN_COORDINATOR")
	}
	if cfg.Group == "" {
		cfg.Group = os.Getenv("DISTTRAIN_GROUP")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Coordinator == "":
		return errors.New("config: no coordinator address")
	case c.Group == "":
		return errors.New("config: no group name")
	case c.World < 1:
		return fmt.Errorf("config: world size %d is not positive", c.World)
	case c.Steps < 1:
		return fmt.Errorf("config: steps %d is not positive", c.Steps)
	case c.ItersPerEpoch < 1:
		return fmt.Errorf("config: iters_per_epoch %d is not positive", c.ItersPerEpoch)
	case c.LearningRate <= 0:
		return fmt.Errorf("config: learning_rate %v is not positive", c.LearningRate)
	case c.Key == "":
		return errors.New("config: no observation key")
	case c.CommInterval < 1:
		return fmt.Errorf("config: comm_interval %d is not positive", c.CommInterval)
	case c.Timeout < 0:
		return fmt.Errorf("config: timeout %v is negative", time.Duration(c.Timeout))
	}
	return nil
}
