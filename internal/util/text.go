package util

import (
	"regexp"
	"strings"
)

// KeyDelimiter joins the parts of a composite normalized key.
const KeyDelimiter = "|"

var (
	reSpaces = regexp.MustCompile(`\s+`)
	reHyphen = regexp.MustCompile(`-`)
)

// Normalize trims and lower-cases s. Used for every grouping key so that
// case or surrounding whitespace never splits one work into two.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizePtr(s *string) string {
	if s == nil {
		return ""
	}
	return Normalize(*s)
}

// CompositeKey normalizes each part and joins them with KeyDelimiter.
func CompositeKey(parts ...*string) string {
	norm := make([]string, 0, len(parts))
	for _, p := range parts {
		norm = append(norm, NormalizePtr(p))
	}
	return strings.Join(norm, KeyDelimiter)
}

// NormalizeIdentifier strips hyphens and upper-cases a catalog identifier.
func NormalizeIdentifier(id string) string {
	return strings.ToUpper(reHyphen.ReplaceAllString(id, ""))
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func StringPtr(v string) *string {
	return &v
}

// NonEmptyPtr returns nil for blank input, otherwise a pointer to the
// trimmed value.
func NonEmptyPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// EqualPtr reports whether a and b are both absent or hold the same string.
func EqualPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FirstPresent returns the first non-nil value.
func FirstPresent(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
