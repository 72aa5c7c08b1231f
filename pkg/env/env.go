// Package env reads process environment variables with fallbacks for the few
// knobs that live outside the typed config.
package env

import "os"

// Get looks up key and falls back when it is unset or empty.
func Get(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}
