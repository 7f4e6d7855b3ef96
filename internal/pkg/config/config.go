package config

import (
	"io"
	"time"
)

// TimeConfig reads integer values as durations in the unit named by the method.
type TimeConfig interface {
	GetMillisecond(key string) time.Duration
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration
	GetHour(key string) time.Duration
}

// Config is the read-only view of runtime configuration.
//
// Missing keys yield the zero value of the requested type unless a default was
// registered when the implementation was built.
type Config interface {
	io.Closer
	TimeConfig

	GetBool(key string) bool
	GetInt(key string) int
	GetFloat64(key string) float64
	GetString(key string) string

	// GetBinary decodes a standard base64 value; invalid input yields nil.
	GetBinary(key string) []byte

	// GetArray splits a comma separated value, trimming spaces and dropping empty items.
	GetArray(key string) []string
}
