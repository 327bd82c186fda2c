// Package config resolves the engine's environment-backed configuration
// surface (spec section 6), following the same load-defaults-then-override
// pattern the rest of the module's ambient wiring uses: build sane defaults
// in code, then let os.Getenv override them, logging and ignoring bad values
// rather than failing startup.
package config

import (
	"os"
	"strconv"

	"rollback/internal/telemetry"
)

// Engine-wide constants carried over from the original implementation's
// compat.h rather than left as magic numbers scattered through the sync
// engine.
const (
	MaxPlayers            = 4
	MaxPredictionFrames   = 8
	KeyframeInterval      = 4
	DefaultLZ4Accel       = 1
	DefaultInputQueueSize = 128
)

// Config is the resolved, ready-to-use configuration for a Sync engine.
type Config struct {
	NumPlayers          int
	InputSize           int
	NumPredictionFrames int
	LZ4Accel            int
	AsyncCompress       bool
	Log                 LogConfig
}

// LogConfig mirrors the source's ggpo.log* environment toggles.
type LogConfig struct {
	Enabled    bool
	Ignore     bool
	Timestamps bool
}

// Default returns the engine's baseline configuration before any
// environment overrides are applied.
func Default() Config {
	return Config{
		NumPlayers:          2,
		InputSize:           4,
		NumPredictionFrames: MaxPredictionFrames,
		LZ4Accel:            DefaultLZ4Accel,
		AsyncCompress:       true,
		Log: LogConfig{
			Enabled:    true,
			Ignore:     false,
			Timestamps: true,
		},
	}
}

// FromEnvironment overlays process environment variables onto a base
// configuration. Parse failures are logged and the previous value is kept,
// matching internal/app's handling of KEYFRAME_INTERVAL_TICKS in the
// teacher module this engine was adapted from.
func FromEnvironment(base Config, logger telemetry.Logger) Config {
	cfg := base

	if raw := os.Getenv("GGPO_SYNC_LZ4_ACCEL"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.LZ4Accel = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_SYNC_LZ4_ACCEL=%q: %v", raw, err)
		}
	}

	if raw := os.Getenv("GGPO_NUM_PREDICTION_FRAMES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.NumPredictionFrames = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_NUM_PREDICTION_FRAMES=%q: %v", raw, err)
		}
	}

	if raw := os.Getenv("GGPO_ASYNC_COMPRESS"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.AsyncCompress = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_ASYNC_COMPRESS=%q: %v", raw, err)
		}
	}

	if raw := os.Getenv("GGPO_LOG"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Log.Enabled = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_LOG=%q: %v", raw, err)
		}
	}

	if raw := os.Getenv("GGPO_LOG_IGNORE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Log.Ignore = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_LOG_IGNORE=%q: %v", raw, err)
		}
	}

	if raw := os.Getenv("GGPO_LOG_TIMESTAMPS"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Log.Timestamps = value
		} else if logger != nil {
			logger.Warnf("invalid GGPO_LOG_TIMESTAMPS=%q: %v", raw, err)
		}
	}

	return cfg
}
