// Package content inspects clipboard payloads: it assigns smart sub-types
// to text (color, email, phone), decides when text is really a URL, and
// computes the content fingerprint used as the dedup key.
package content

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"clipvault/pkg/types"
)

// Matching limits. Anything longer cannot be a valid value of the type,
// so the more expensive checks are skipped entirely.
const (
	maxEmailLength = 320
	maxPhoneLength = 30
)

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

	// phoneShapeRe restricts phone candidates to dialable characters.
	// The underlying parser tolerates surrounding prose by extracting the
	// first plausible number; this guard keeps matching full-string only.
	// A leading "(" is allowed for area-code forms like "(415) 555-0100".
	phoneShapeRe = regexp.MustCompile(`^\+?[0-9(][0-9\s().\-/]*$`)
)

// Classification is the result of smart-type detection. Color carries the
// parsed channels when Type is SmartColor.
type Classification struct {
	Type  types.SmartType
	Color types.Color
}

// Classifier assigns smart sub-types to text payloads. Matching is always
// against the entire trimmed string, never a substring, so mixed content
// ("not a color #FF5733 really") does not false-positive.
type Classifier struct {
	region string
}

// NewClassifier returns a classifier using region (ISO 3166-1 alpha-2)
// as the default region for phone-number detection.
func NewClassifier(region string) *Classifier {
	return &Classifier{region: region}
}

// Classify returns the most specific smart-type match for s, or SmartNone.
// Priority: color, then email, then phone. Colors are cheapest to rule
// out, and email is structurally stricter than phone heuristics.
func (c *Classifier) Classify(s string) Classification {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Classification{Type: types.SmartNone}
	}

	if col, ok := ParseColor(trimmed); ok {
		return Classification{Type: types.SmartColor, Color: col}
	}

	if len(trimmed) <= maxEmailLength && emailRe.MatchString(trimmed) {
		return Classification{Type: types.SmartEmail}
	}

	if len(trimmed) <= maxPhoneLength && c.isPhoneNumber(trimmed) {
		return Classification{Type: types.SmartPhone}
	}

	return Classification{Type: types.SmartNone}
}

// isPhoneNumber accepts only strings that are a single valid number
// spanning the whole input.
func (c *Classifier) isPhoneNumber(s string) bool {
	if !phoneShapeRe.MatchString(s) {
		return false
	}
	num, err := phonenumbers.Parse(s, c.region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// IsURL reports whether trimmed text is a well-formed absolute URL with a
// scheme and host. The monitor uses this to reclassify text payloads.
func IsURL(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return false
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
