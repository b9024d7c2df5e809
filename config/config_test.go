package config

import (
	"testing"
	"time"
)

func TestParse_AppliesDefaultsToZeroFields(t *testing.T) {
	cfg, err := Parse([]byte(`max_steps: 50`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MaxSteps != 50 {
		t.Fatalf("MaxSteps = %d, want 50", cfg.MaxSteps)
	}
	if cfg.QueueDepth != Default().QueueDepth {
		t.Fatalf("QueueDepth = %d, want default %d", cfg.QueueDepth, Default().QueueDepth)
	}
}

func TestParse_HonorsExplicitOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
queue_depth: 8
parallel_queue_depth: 4
backpressure_timeout: 5s
retry_attempts: 3
retry_base_delay: 200ms
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.QueueDepth != 8 {
		t.Fatalf("QueueDepth = %d, want 8", cfg.QueueDepth)
	}
	if cfg.ParallelQueueDepth != 4 {
		t.Fatalf("ParallelQueueDepth = %d, want 4", cfg.ParallelQueueDepth)
	}
	if cfg.BackpressureTimeout != 5*time.Second {
		t.Fatalf("BackpressureTimeout = %v, want 5s", cfg.BackpressureTimeout)
	}
	if cfg.RetryAttempts != 3 {
		t.Fatalf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RetryBaseDelay != 200*time.Millisecond {
		t.Fatalf("RetryBaseDelay = %v, want 200ms", cfg.RetryBaseDelay)
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("max_steps: [not a number")); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestEngineConfig_OptionsBuildsAnEngine(t *testing.T) {
	cfg := Default()
	if len(cfg.Options()) == 0 {
		t.Fatal("Options() returned no options")
	}
}
