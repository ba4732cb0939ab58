package services

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultVerificationMarker is the phrase a display name must carry unless the
// deployment configures another one.
const DefaultVerificationMarker = "tornettlogs.cc uhq logs"

// IsVerified reports whether displayName contains marker, ignoring case.
func IsVerified(displayName string, marker string) bool {
	if strings.TrimSpace(displayName) == "" || strings.TrimSpace(marker) == "" {
		return false
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(displayName), fold.String(strings.TrimSpace(marker)))
}
