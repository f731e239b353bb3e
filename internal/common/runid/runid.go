// Package runid generates identifiers that correlate one scenario run
// across logs and metrics.
package runid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength caps run IDs at UUID length so log fields stay uniform.
	MaxLength = 36
	// PrefixLength is the length of the random prefix.
	PrefixLength = 5
	// MaxLabelLength bounds the sanitized label portion.
	MaxLabelLength = MaxLength - PrefixLength - 1
)

var (
	invalidChars    = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// New builds a run ID from an optional human-readable label. The label is
// sanitized to [a-zA-Z0-9-] and prefixed with random characters so repeated
// runs of the same suite stay distinguishable. An empty or fully-invalid
// label falls back to a plain UUID.
func New(label string) string {
	sanitized := strings.ReplaceAll(label, " ", "-")
	sanitized = invalidChars.ReplaceAllString(sanitized, "")
	sanitized = repeatedHyphens.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}
	if len(sanitized) > MaxLabelLength {
		sanitized = sanitized[:MaxLabelLength]
	}
	return randomPrefix() + "-" + sanitized
}

func randomPrefix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()[:PrefixLength]
	}
	return hex.EncodeToString(b)[:PrefixLength]
}
