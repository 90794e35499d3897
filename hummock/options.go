package hummock

import (
	"github.com/beyondbrewing/hummock/db"
	"github.com/beyondbrewing/hummock/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the engine settings. Use functional [Option] values with
// [NewStorage] or [Open] rather than constructing a Config directly.
type Config struct {
	// WriteConflictDetectionEnabled builds a conflict detector and checks
	// every write batch against it. Off by default.
	WriteConflictDetectionEnabled bool

	// Registerer receives the engine metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// DBOptions are passed to db.Open by [Open].
	DBOptions []db.Option

	// Logger falls back to logger.Default() when nil.
	Logger logger.Logger
}

// Option is a functional option applied to [Config].
type Option func(*Config)

// WithConflictDetection toggles the write conflict detector.
func WithConflictDetection(enabled bool) Option {
	return func(c *Config) { c.WriteConflictDetectionEnabled = enabled }
}

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = reg }
}

// WithDBOptions tunes the Pebble instance opened by [Open].
func WithDBOptions(opts ...db.Option) Option {
	return func(c *Config) { c.DBOptions = append(c.DBOptions, opts...) }
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
