package env

import (
	"os"
	"strings"
)

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Instance identifies the running process in logs and lock owners.
func Instance() string {
	for _, key := range []string{"INSTANCE_ID", "HOSTNAME", "DYNO"} {
		if val := Get(key, ""); val != "" {
			return val
		}
	}
	return "local"
}
