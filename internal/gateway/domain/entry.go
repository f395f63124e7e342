package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInvalidExpiry is returned when a temporal entry carries an expiry that is
// missing or cannot be parsed.
var ErrInvalidExpiry = errors.New("domain: invalid expiry")

type Status string

const (
	StatusAuthorized   Status = "authorized"
	StatusUnauthorized Status = "unauthorized"
	StatusExpired      Status = "expired"
)

type Kind string

const (
	KindPermanent Kind = "permanent"
	KindTemporal  Kind = "temporal"
)

// Entry is the stored authorization state for one HWID. ExpiresAt is kept
// as the raw stored text so a malformed value surfaces at evaluation time
// instead of making the whole registry unreadable.
type Entry struct {
	Status    Status `json:"status" yaml:"status"`
	Kind      Kind   `json:"kind" yaml:"kind"`
	ExpiresAt string `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// UnmarshalJSON accepts any JSON value in the entry's fields. Non-string
// values keep their raw JSON text, so a numeric expiresAt fails in Expiry
// for this entry alone.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status    json.RawMessage `json:"status"`
		Kind      json.RawMessage `json:"kind"`
		ExpiresAt json.RawMessage `json:"expiresAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{
		Status:    Status(scalarText(raw.Status)),
		Kind:      Kind(scalarText(raw.Kind)),
		ExpiresAt: scalarText(raw.ExpiresAt),
	}
	return nil
}

func scalarText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Expiry parses ExpiresAt. Zone-less layouts are read as UTC.
func (e Entry) Expiry() (time.Time, error) {
	raw := strings.TrimSpace(e.ExpiresAt)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidExpiry)
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidExpiry, raw)
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Expire returns a copy of e marked expired. Applying it twice is a no-op.
func (e Entry) Expire() Entry {
	e.Status = StatusExpired
	return e
}

// Registry maps the stored HWID key to its entry.
type Registry map[string]Entry

// Lookup finds the entry for hwid. An exact key match wins; otherwise keys are
// compared in canonical form and, when several stored keys share it, the
// lexically smallest wins. The returned key is the registry's own key, which
// is what must be used when writing the entry back.
func (r Registry) Lookup(hwid HWID) (string, Entry, bool) {
	if e, ok := r[hwid.String()]; ok {
		return hwid.String(), e, true
	}

	want := hwid.Canonical()
	var matches []string
	for key := range r {
		if canonical(key) == want {
			matches = append(matches, key)
		}
	}
	if len(matches) == 0 {
		return "", Entry{}, false
	}

	slices.Sort(matches)
	return matches[0], r[matches[0]], true
}

// Clone returns a shallow copy safe to mutate.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
