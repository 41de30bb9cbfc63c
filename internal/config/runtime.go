// Package config loads the runtime tunables of the scanhead client:
// timing constants that spec.md pins to literal values (discovery
// wait window, keep-alive interval, receive-task read timeout, the
// partial-frame threshold) but that an integrator may reasonably want
// to override per deployment.
//
// Adapted from the teacher's internal/config/tuning.go: the same
// "all-pointer, partial JSON is safe, Get* supplies the spec default"
// shape, applied to this system's timing knobs instead of street-
// radar tracker tuning.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RuntimeConfig holds optional overrides for the scanhead runtime's
// timing constants. Every field is a pointer so that a partial JSON
// document — or a zero-value RuntimeConfig{} — falls back to the
// spec-mandated default via the matching Get* accessor.
type RuntimeConfig struct {
	// DiscoveryWait is the sleep between broadcasting the discovery
	// probe and draining replies (spec.md §4.3: "~200 ms").
	DiscoveryWait *string `json:"discovery_wait,omitempty"`

	// KeepAliveInterval is the orchestrator's keep-alive cadence while
	// scanning (spec.md §4.7: "~1 s").
	KeepAliveInterval *string `json:"keep_alive_interval,omitempty"`

	// ScanSyncEvictAfter is how long a ScanSync entry may go unseen
	// before the monitor evicts it (spec.md §4.2: "more than 1 second").
	ScanSyncEvictAfter *string `json:"scansync_evict_after,omitempty"`

	// ReadTimeout is the default blocking-read timeout used for
	// liveness polls on TCP sockets (spec.md §5: "defaulting to 1 s").
	ReadTimeout *string `json:"read_timeout,omitempty"`

	// PartialFrameThreshold is the ready-queue size at which the frame
	// assembler declares a frame ready even though not every session
	// has reached the current sequence (spec.md §4.8: "50").
	PartialFrameThreshold *int `json:"partial_frame_threshold,omitempty"`

	// MinEncoderTravel, when non-nil and non-zero, enables the
	// single-mode minimum-encoder-travel gate (spec.md §4.6).
	MinEncoderTravel *int32 `json:"min_encoder_travel,omitempty"`

	// IdleScanPeriod, paired with MinEncoderTravel, forces a profile
	// through the gate if none has passed in this long (spec.md §4.6).
	IdleScanPeriod *string `json:"idle_scan_period,omitempty"`
}

// Default returns an empty RuntimeConfig; every accessor on it yields
// the spec's literal default.
func Default() *RuntimeConfig { return &RuntimeConfig{} }

// Load reads a RuntimeConfig from a JSON file. Fields the file omits
// keep their spec defaults; Load never requires a complete document.
func Load(path string) (*RuntimeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set duration strings parse and that set
// numeric fields are non-negative.
func (c *RuntimeConfig) Validate() error {
	for name, s := range map[string]*string{
		"discovery_wait":       c.DiscoveryWait,
		"keep_alive_interval":  c.KeepAliveInterval,
		"scansync_evict_after": c.ScanSyncEvictAfter,
		"read_timeout":         c.ReadTimeout,
		"idle_scan_period":     c.IdleScanPeriod,
	} {
		if s != nil && *s != "" {
			if _, err := time.ParseDuration(*s); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *s, err)
			}
		}
	}
	if c.PartialFrameThreshold != nil && *c.PartialFrameThreshold < 0 {
		return fmt.Errorf("partial_frame_threshold must be non-negative, got %d", *c.PartialFrameThreshold)
	}
	if c.MinEncoderTravel != nil && *c.MinEncoderTravel < 0 {
		return fmt.Errorf("min_encoder_travel must be non-negative, got %d", *c.MinEncoderTravel)
	}
	return nil
}

func duration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetDiscoveryWait returns the discovery reply-collection wait.
func (c *RuntimeConfig) GetDiscoveryWait() time.Duration {
	return duration(c.DiscoveryWait, 200*time.Millisecond)
}

// GetKeepAliveInterval returns the orchestrator keep-alive cadence.
func (c *RuntimeConfig) GetKeepAliveInterval() time.Duration {
	return duration(c.KeepAliveInterval, 1*time.Second)
}

// GetScanSyncEvictAfter returns the ScanSync liveness eviction window.
func (c *RuntimeConfig) GetScanSyncEvictAfter() time.Duration {
	return duration(c.ScanSyncEvictAfter, 1*time.Second)
}

// GetReadTimeout returns the default blocking-read timeout.
func (c *RuntimeConfig) GetReadTimeout() time.Duration {
	return duration(c.ReadTimeout, 1*time.Second)
}

// GetPartialFrameThreshold returns the frame assembler's partial-frame
// readiness threshold.
func (c *RuntimeConfig) GetPartialFrameThreshold() int {
	if c.PartialFrameThreshold == nil {
		return 50
	}
	return *c.PartialFrameThreshold
}

// GetMinEncoderTravel returns the minimum-encoder-travel gate, or 0 if
// disabled.
func (c *RuntimeConfig) GetMinEncoderTravel() int32 {
	if c.MinEncoderTravel == nil {
		return 0
	}
	return *c.MinEncoderTravel
}

// GetIdleScanPeriod returns the idle-scan-period override paired with
// MinEncoderTravel, or 0 if disabled.
func (c *RuntimeConfig) GetIdleScanPeriod() time.Duration {
	return duration(c.IdleScanPeriod, 0)
}
