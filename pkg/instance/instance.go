package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier used in logs and lock owners.
// It falls back to the hostname, then to a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("CAUTELA_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
