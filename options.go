package prs

import "time"

// Config holds the compile-time constants of the original spec (§6),
// turned into runtime configuration with the same defaults.
type Config struct {
	// MaxObjects bounds the object directory; must be a power of two.
	MaxObjects int
	// StackSize is the per-task virtual stack reservation in bytes.
	StackSize int
	// TicksPerSecond is the global clock rate driving the timer wheel.
	TicksPerSecond int
	// MaxCPUs bounds how many workers Runtime.Init will ever create; a
	// larger numWorkers is clamped to it.
	MaxCPUs int
	// MaxNameLength is the configured task/scheduler name limit (in
	// bytes). No code in this package checks names against it.
	MaxNameLength int
	// LogCapacity bounds the MPMC log ring (must be a power of two).
	LogCapacity int
	// MessagePoolCapacity is the configured message pool size. No code in
	// this package reads it: messages are not drawn from a pool.
	MessagePoolCapacity int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxObjects:          4096,
		StackSize:           1 << 20, // 1 MiB
		TicksPerSecond:      1000,
		MaxCPUs:             32,
		MaxNameLength:       32,
		LogCapacity:         4096,
		MessagePoolCapacity: 4096,
	}
}

// Option configures a Runtime at construction time.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithMaxObjects overrides the object directory capacity.
func WithMaxObjects(n int) Option {
	return optionFunc(func(c *Config) { c.MaxObjects = n })
}

// WithStackSize overrides the per-task stack reservation.
func WithStackSize(n int) Option {
	return optionFunc(func(c *Config) { c.StackSize = n })
}

// WithTicksPerSecond overrides the clock rate.
func WithTicksPerSecond(n int) Option {
	return optionFunc(func(c *Config) { c.TicksPerSecond = n })
}

// WithMaxCPUs overrides the worker count ceiling.
func WithMaxCPUs(n int) Option {
	return optionFunc(func(c *Config) { c.MaxCPUs = n })
}

// WithLogCapacity overrides the log ring capacity.
func WithLogCapacity(n int) Option {
	return optionFunc(func(c *Config) { c.LogCapacity = n })
}

// WithMessagePoolCapacity overrides the message pool capacity.
func WithMessagePoolCapacity(n int) Option {
	return optionFunc(func(c *Config) { c.MessagePoolCapacity = n })
}

// tickDuration returns the wall-clock duration of one tick for c.
func (c Config) tickDuration() time.Duration {
	return time.Second / time.Duration(c.TicksPerSecond)
}
