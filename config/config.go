// Package config loads engine.Options from YAML files, in the shape
// idestis-pipe, tombee-conductor, and ferg-cod3s-conexus all configure
// their respective engines — a host-side convenience. Nothing in the
// engine package itself reads a file; config only builds the
// engine.Option slice a host passes to engine.New.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/flowrun/engine"
)

// EngineConfig is the YAML-serializable mirror of engine.Options (spec.md
// §5 "retryConfig... reserved but not actuated"; fields here are carried
// through unchanged).
type EngineConfig struct {
	MaxSteps            int           `yaml:"max_steps,omitempty"`
	QueueDepth          int           `yaml:"queue_depth,omitempty"`
	ParallelQueueDepth  int           `yaml:"parallel_queue_depth,omitempty"`
	BackpressureTimeout time.Duration `yaml:"backpressure_timeout,omitempty"`
	RetryAttempts       int           `yaml:"retry_attempts,omitempty"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay,omitempty"`
}

// Default returns an EngineConfig matching engine.New's own defaults, so
// a partially specified YAML document only needs to override what it
// cares about.
func Default() EngineConfig {
	return EngineConfig{
		QueueDepth:          1024,
		ParallelQueueDepth:  64,
		BackpressureTimeout: 30 * time.Second,
	}
}

// Load reads and parses an EngineConfig from a YAML file at path. Zero
// fields in the file fall back to Default's values.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses an EngineConfig from raw YAML, applying Default's values
// to any field the document leaves zero.
func Parse(data []byte) (EngineConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parsing YAML: %w", err)
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = Default().QueueDepth
	}
	if cfg.ParallelQueueDepth == 0 {
		cfg.ParallelQueueDepth = Default().ParallelQueueDepth
	}
	if cfg.BackpressureTimeout == 0 {
		cfg.BackpressureTimeout = Default().BackpressureTimeout
	}
	return cfg, nil
}

// Options converts c into the engine.Option slice engine.New expects.
func (c EngineConfig) Options() []engine.Option {
	opts := []engine.Option{
		engine.WithMaxSteps(c.MaxSteps),
		engine.WithQueueDepth(c.QueueDepth),
		engine.WithParallelQueueDepth(c.ParallelQueueDepth),
		engine.WithBackpressureTimeout(c.BackpressureTimeout),
	}
	if c.RetryAttempts != 0 || c.RetryBaseDelay != 0 {
		opts = append(opts, engine.WithRetryConfig(c.RetryAttempts, c.RetryBaseDelay))
	}
	return opts
}
