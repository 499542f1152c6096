// Package phone provides phone number normalization for lead identity.
//
// Leads are keyed by phone number, so every number that enters the system goes
// through Normalize first. Parsing uses libphonenumber; input that cannot be
// parsed is returned stripped of formatting rather than rejected, matching the
// tolerant behavior the webhook surface has always had.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

var nonDialable = regexp.MustCompile(`[^0-9+]`)

// Normalize formats a phone number to E.164. Bare 10-digit national numbers
// get the +1 country code. If parsing fails, the cleaned digits are returned
// as-is so callers can still use them as a lookup key.
func Normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	cleaned := nonDialable.ReplaceAllString(trimmed, "")
	number, err := phonenumbers.Parse(cleaned, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		if !strings.HasPrefix(cleaned, "+") && len(cleaned) == 10 {
			return "+1" + cleaned
		}
		return cleaned
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
