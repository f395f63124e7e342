package domain

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidHWID is returned for empty or malformed hardware identifiers.
var ErrInvalidHWID = errors.New("domain: invalid hwid")

// 8-4-4-4-12 hex groups, each hyphen optional.
var hwidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-?(?:[0-9a-f]{4}-?){3}[0-9a-f]{12}$`)

// HWID is a validated hardware identifier exactly as the caller presented it.
type HWID string

// ParseHWID validates raw against the HWID shape. It does not trim or
// otherwise rewrite the input.
func ParseHWID(raw string) (HWID, error) {
	if !hwidPattern.MatchString(raw) {
		return "", ErrInvalidHWID
	}
	return HWID(raw), nil
}

func (h HWID) String() string { return string(h) }

// Canonical is the lowercase, hyphen-free form used to match registry keys
// that were written with different casing or grouping.
func (h HWID) Canonical() string {
	return canonical(string(h))
}

func canonical(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}
