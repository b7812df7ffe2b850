package instance

import (
	"os"
	"strings"
)

var envKeys = []string{"MARKETLEDGER_INSTANCE_ID", "DYNO"}

// ID returns the process instance identifier used to tag logs, or fallback
// when none is configured.
func ID(fallback string) string {
	for _, key := range envKeys {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if fallback == "" {
		return "local"
	}
	return fallback
}
