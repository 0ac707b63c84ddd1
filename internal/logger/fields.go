package logger

import (
	"time"

	"go.uber.org/zap"
)

// Typed field constructors, re-exported so callers never import zap.

// String creates a string field.
func String(key, val string) Field {
	return zap.String(key, val)
}

// Int creates an int field.
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 creates an int64 field.
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Bool creates a boolean field.
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration creates a time.Duration field.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Time creates a time.Time field.
func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Error creates a field for an error under the key "error".
func Error(err error) Field {
	return zap.Error(err)
}

// Any creates a field with an arbitrary value via reflection. Prefer the
// typed constructors where one exists.
func Any(key string, val any) Field {
	return zap.Any(key, val)
}

// Stack captures a stack trace under the key "stacktrace".
func Stack() Field {
	return zap.Stack("stacktrace")
}
