package env

import "os"

// Get reads an environment variable, returning fallback when it is unset or
// empty. For anything beyond early-bootstrap lookups use pkg/config instead.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
