package config

import (
	"fmt"
	"time"
)

// OptionKey identifies a recognized channel configuration knob. Like
// AttrKey, two keys sharing a name are never distinct objects. Validate, if
// non-nil, is run by Config.Set before the value is accepted.
type OptionKey struct {
	name     string
	id       uint64
	validate func(any) error
}

// NewOptionKey registers and returns a new, globally unique option key.
func NewOptionKey(name string, validate func(any) error) OptionKey {
	return OptionKey{name: name, id: registerKeyName("option:" + name), validate: validate}
}

// Name returns the key's registered name.
func (k OptionKey) Name() string { return k.name }

func validatePositiveInt(v any) error {
	n, ok := v.(int)
	if !ok {
		return fmt.Errorf("expected int, got %T", v)
	}
	if n <= 0 {
		return fmt.Errorf("expected a positive value, got %d", n)
	}
	return nil
}

func validateBool(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", v)
	}
	return nil
}

func validateNonNegativeDuration(v any) error {
	d, ok := v.(time.Duration)
	if !ok {
		return fmt.Errorf("expected time.Duration, got %T", v)
	}
	if d < 0 {
		return fmt.Errorf("expected a non-negative duration, got %v", d)
	}
	return nil
}

// Recognized channel options (spec §3 Channel, §6 configuration surface).
var (
	OptionReceiveBufferSize      = NewOptionKey("receiveBufferSize", validatePositiveInt)
	OptionSendBufferSize         = NewOptionKey("sendBufferSize", validatePositiveInt)
	OptionAutoRead               = NewOptionKey("autoRead", validateBool)
	OptionConnectTimeout         = NewOptionKey("connectTimeout", validateNonNegativeDuration)
	OptionWriteBufferHighWaterMark = NewOptionKey("writeBufferHighWaterMark", validatePositiveInt)
	OptionWriteBufferLowWaterMark  = NewOptionKey("writeBufferLowWaterMark", validatePositiveInt)
	OptionBacklog                = NewOptionKey("backlog", validatePositiveInt)
)

// Config is a channel's option set: append-only, insertion-ordered (spec §5
// "Option registries are append-only insertion-ordered because later
// options may validate against earlier ones").
type Config struct {
	order  []OptionKey
	values map[uint64]any
}

// NewConfig builds a Config with the framework defaults: auto-read on, a
// 64KiB receive buffer, a 1024-connection backlog.
func NewConfig() *Config {
	c := &Config{values: make(map[uint64]any)}
	// Defaults are applied directly, bypassing validation plumbing: they are
	// known-good and must never themselves trigger the unsupported-option
	// warning path.
	c.order = append(c.order, OptionAutoRead, OptionReceiveBufferSize, OptionBacklog)
	c.values[OptionAutoRead.id] = true
	c.values[OptionReceiveBufferSize.id] = 64 * 1024
	c.values[OptionBacklog.id] = 1024
	return c
}

// Set validates and stores value under key. A nil value removes the key.
// Returns a validation error if key carries one and it rejects value.
func (c *Config) Set(key OptionKey, value any) error {
	if value == nil {
		delete(c.values, key.id)
		return nil
	}
	if key.validate != nil {
		if err := key.validate(value); err != nil {
			return fmt.Errorf("config: option %q: %w", key.name, err)
		}
	}
	if _, exists := c.values[key.id]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key.id] = value
	return nil
}

// Get returns the value stored under key, and whether it was present.
func (c *Config) Get(key OptionKey) (any, bool) {
	v, ok := c.values[key.id]
	return v, ok
}

// GetBool is a convenience accessor for boolean options, returning
// defaultValue if key is unset.
func (c *Config) GetBool(key OptionKey, defaultValue bool) bool {
	v, ok := c.values[key.id]
	if !ok {
		return defaultValue
	}
	b, _ := v.(bool)
	return b
}

// GetInt is a convenience accessor for int options, returning defaultValue
// if key is unset.
func (c *Config) GetInt(key OptionKey, defaultValue int) int {
	v, ok := c.values[key.id]
	if !ok {
		return defaultValue
	}
	n, _ := v.(int)
	return n
}

// GetDuration is a convenience accessor for duration options, returning
// defaultValue if key is unset.
func (c *Config) GetDuration(key OptionKey, defaultValue time.Duration) time.Duration {
	v, ok := c.values[key.id]
	if !ok {
		return defaultValue
	}
	d, _ := v.(time.Duration)
	return d
}

// Options is a set of (key, value) pairs to apply in order, as collected by
// a bootstrap's parentOption/childOption calls (spec §6).
type Options []OptionEntry

// OptionEntry pairs an OptionKey with the value a bootstrap should apply.
type OptionEntry struct {
	Key   OptionKey
	Value any
}

// Attrs is a set of (key, value) pairs to apply in order, as collected by a
// bootstrap's parentAttr/childAttr calls (spec §6).
type Attrs []AttrEntry

// AttrEntry pairs an AttrKey with the value a bootstrap should apply.
type AttrEntry struct {
	Key   AttrKey
	Value any
}
