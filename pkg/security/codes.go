package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const segmentBytes = 4

// CodeFormat generates and validates delivery codes in the canonical
// PREFIX-XXXXXXXX-XXXXXXXX shape: two fixed-width uppercase hex segments
// behind a deployment-fixed prefix.
type CodeFormat struct {
	prefix  string
	pattern *regexp.Regexp
}

// NewCodeFormat builds a format bound to the configured prefix.
func NewCodeFormat(prefix string) (*CodeFormat, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("code prefix is required")
	}
	if prefix != strings.ToUpper(prefix) {
		return nil, fmt.Errorf("code prefix must be uppercase")
	}
	pattern, err := regexp.Compile(fmt.Sprintf(`^%s-[0-9A-F]{8}-[0-9A-F]{8}$`, regexp.QuoteMeta(prefix)))
	if err != nil {
		return nil, fmt.Errorf("compiling code pattern: %w", err)
	}
	return &CodeFormat{prefix: prefix, pattern: pattern}, nil
}

// Prefix returns the deployment prefix this format validates against.
func (f *CodeFormat) Prefix() string {
	return f.prefix
}

// Generate draws both segments from a cryptographically secure source.
func (f *CodeFormat) Generate() (string, error) {
	first, err := randomSegment()
	if err != nil {
		return "", err
	}
	second, err := randomSegment()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", f.prefix, first, second), nil
}

// Validate reports whether raw matches the canonical format. It performs no
// lookups; malformed input must be rejected before any I/O.
func (f *CodeFormat) Validate(raw string) bool {
	return f.pattern.MatchString(raw)
}

func randomSegment() (string, error) {
	buf := make([]byte, segmentBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code segment: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
