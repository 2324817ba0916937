// Package config defines the engine's runtime configuration — scheduler
// concurrency, arena capacity, cluster identity, transport endpoints and
// log settings — and validates it before the engine starts. Loading
// precedence (flags, then environment, then config file, then defaults)
// is cmd/pipelinectl's concern, built on viper; this package only
// describes the resulting shape and checks it for startup-blocking
// mistakes.
package config

import (
	"fmt"
	"strings"
)

// EngineConfig is the full set of runtime knobs pipelinectl exposes via
// flags and environment variables.
type EngineConfig struct {
	// MaxConcurrent bounds how many tasks the scheduler runs at once.
	MaxConcurrent int
	// ArenaCapacity is the shared-memory arena's byte budget.
	ArenaCapacity int64
	// Rank and WorldSize place this process in the cluster; Rank 0 is
	// the coordinator for workflows submitted locally.
	Rank      int
	WorldSize int
	// AMQPURL is the broker URL the AMQP cluster transport dials. The
	// transport is attached only when AMQPURL is set and WorldSize > 1;
	// otherwise the router runs with no cluster transport.
	AMQPURL string
	// RedisURL, if non-empty, is the Redis server of the arena
	// rendezvous service, which publishes an arena's object index and
	// object bytes so a peer can rebuild its object table.
	RedisURL string
	// GUIAddr is the address the live status broadcaster listens on
	// when pipelinectl is started with --gui.
	GUIAddr string
	// LogLevel and LogFormat configure internal/logging.NewLogger.
	LogLevel  string
	LogFormat string
}

// DefaultEngineConfig returns an EngineConfig for a single-process run
// with no cluster transport and no GUI.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrent: 8,
		ArenaCapacity: 256 * 1024 * 1024,
		Rank:          0,
		WorldSize:     1,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]string, 0),
	}
}

// RequirePositiveInt validates that an integer field is positive
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// ErrorString returns all validation errors as a single string
func (v *Validator) ErrorString() string {
	if len(v.errors) == 0 {
		return ""
	}
	return strings.Join(v.errors, "; ")
}

// Validate runs validation and returns error if invalid
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// ValidateEngineConfig checks an EngineConfig for startup-blocking
// mistakes: non-positive concurrency/capacity/world-size, or an
// unrecognized log level.
func ValidateEngineConfig(cfg EngineConfig) error {
	v := NewValidator()
	v.RequirePositiveInt("MaxConcurrent", cfg.MaxConcurrent)
	v.RequirePositiveInt("WorldSize", cfg.WorldSize)
	if cfg.ArenaCapacity <= 0 {
		v.errors = append(v.errors, "ArenaCapacity must be positive")
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.WorldSize {
		v.errors = append(v.errors, fmt.Sprintf("Rank must be in [0, %d)", cfg.WorldSize))
	}
	v.RequireOneOf("LogLevel", cfg.LogLevel, []string{"debug", "info", "warn", "error"})
	v.RequireOneOf("LogFormat", cfg.LogFormat, []string{"text", "json"})
	return v.Validate()
}
