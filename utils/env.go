// utils/env.go
package utils

import (
	"log"
	"os"
	"strconv"
	"time"
)

// EnvString returns the named variable or fallback when unset.
func EnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvFloat parses the named variable as a float, falling back on absence or
// parse failure (parse failures are logged, not fatal).
func EnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a number, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

// EnvDuration parses the named variable as a Go duration string.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a duration, using default %v", key, v, fallback)
		return fallback
	}
	return d
}
