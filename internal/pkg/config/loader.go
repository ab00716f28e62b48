// Package config provides fail-open environment loaders. An invalid value
// never stops the process: the loader falls back to the default and reports
// a warning that the caller logs and counts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigLoadResult is the outcome of loading one variable. Warning is set
// only when FallbackApplied is true.
type ConfigLoadResult[T any] struct {
	Value           T
	Warning         string
	FallbackApplied bool
}

func fallback[T any](key, raw string, def T, err error) ConfigLoadResult[T] {
	return ConfigLoadResult[T]{
		Value:           def,
		Warning:         fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'", key, raw, err, def),
		FallbackApplied: true,
	}
}

// load reads key, parses it and validates the parsed value. Unset or empty
// variables yield def without a warning.
func load[T any](key string, def T, parse func(string) (T, error), validator func(T) error) ConfigLoadResult[T] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return ConfigLoadResult[T]{Value: def}
	}
	v, err := parse(raw)
	if err != nil {
		return fallback(key, raw, def, err)
	}
	if validator != nil {
		if err := validator(v); err != nil {
			return fallback(key, raw, def, err)
		}
	}
	return ConfigLoadResult[T]{Value: v}
}

// LoadEnvString returns the variable or def. No validation is performed.
func LoadEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadEnvWithFallback loads a string and validates it.
func LoadEnvWithFallback(key, def string, validator func(string) error) ConfigLoadResult[string] {
	return load(key, def, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a Go duration string such as "30s" or "1h30m".
func LoadEnvDuration(key string, def time.Duration, validator func(time.Duration) error) ConfigLoadResult[time.Duration] {
	return load(key, def, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(key string, def int, validator func(int) error) ConfigLoadResult[int] {
	return load(key, def, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return n, nil
	}, validator)
}

// LoadEnvFloat loads a decimal number.
func LoadEnvFloat(key string, def float64, validator func(float64) error) ConfigLoadResult[float64] {
	return load(key, def, func(s string) (float64, error) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format")
		}
		return f, nil
	}, validator)
}

// LoadEnvBool accepts the strconv.ParseBool spellings.
func LoadEnvBool(key string, def bool) ConfigLoadResult[bool] {
	return load(key, def, func(s string) (bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
		}
		return b, nil
	}, nil)
}

// LoadEnvList splits a comma separated variable, dropping empty items.
func LoadEnvList(key string, def []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Loader collects the warnings of a series of loads and reports every
// fallback to Metrics.
type Loader struct {
	metrics  *ConfigMetrics
	warnings []string
}

// NewLoader creates a Loader. metrics may be nil.
func NewLoader(metrics *ConfigMetrics) *Loader {
	return &Loader{metrics: metrics}
}

func record[T any](l *Loader, field string, r ConfigLoadResult[T]) T {
	if r.FallbackApplied {
		l.warnings = append(l.warnings, r.Warning)
		if l.metrics != nil {
			l.metrics.RecordValidationError(field)
			l.metrics.RecordFallback(field)
		}
	}
	return r.Value
}

func field(key string) string { return strings.ToLower(key) }

// String loads key through LoadEnvWithFallback.
func (l *Loader) String(key, def string, validator func(string) error) string {
	return record(l, field(key), LoadEnvWithFallback(key, def, validator))
}

// Duration loads key through LoadEnvDuration.
func (l *Loader) Duration(key string, def time.Duration, validator func(time.Duration) error) time.Duration {
	return record(l, field(key), LoadEnvDuration(key, def, validator))
}

// Int loads key through LoadEnvInt.
func (l *Loader) Int(key string, def int, validator func(int) error) int {
	return record(l, field(key), LoadEnvInt(key, def, validator))
}

// Float loads key through LoadEnvFloat.
func (l *Loader) Float(key string, def float64, validator func(float64) error) float64 {
	return record(l, field(key), LoadEnvFloat(key, def, validator))
}

// Bool loads key through LoadEnvBool.
func (l *Loader) Bool(key string, def bool) bool {
	return record(l, field(key), LoadEnvBool(key, def))
}

// Warnings returns the warnings collected so far and updates the
// fallback-active gauge.
func (l *Loader) Warnings() []string {
	if l.metrics != nil {
		l.metrics.RecordLoadTimestamp()
		l.metrics.SetFallbackActive(len(l.warnings) > 0)
	}
	return append([]string(nil), l.warnings...)
}
