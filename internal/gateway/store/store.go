package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
)

var (
	// ErrUnavailable means the backing resource is missing or unreadable.
	ErrUnavailable = errors.New("store: registry unavailable")
	// ErrCorrupt means the registry was read but could not be decoded.
	ErrCorrupt = errors.New("store: registry corrupt")
	// ErrWrite means persisting a change failed. Storage is left as it was.
	ErrWrite = errors.New("store: registry write failed")
)

// Registry is the authorization registry. Drivers (file, sqlite, redis)
// implement it. Every request loads a fresh snapshot; nothing is cached in
// process between requests.
type Registry interface {
	// Load returns the full registry. Errors wrap ErrUnavailable or ErrCorrupt.
	Load(ctx context.Context) (domain.Registry, error)

	// ExpireEntry marks key expired if, and only if, the stored entry still
	// equals observed and is authorized. It reports whether it changed
	// anything. Losing a race to another writer that already expired the
	// entry is not an error. Other entries are never touched or dropped.
	// Errors wrap ErrUnavailable, ErrCorrupt or ErrWrite.
	ExpireEntry(ctx context.Context, key string, observed domain.Entry) (bool, error)

	// Ping checks the backing resource is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// Expirable reports whether e may be transitioned by ExpireEntry given the
// entry the caller observed. Drivers share it so the compare step of the
// compare-and-swap behaves the same everywhere.
func Expirable(current, observed domain.Entry) bool {
	return current == observed && current.Status == domain.StatusAuthorized
}

// MarkExpiredJSON sets the status of one JSON encoded entry to expired and
// leaves every other field exactly as stored, including fields this package
// does not know about.
func MarkExpiredJSON(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("entry is not an object")
	}

	// Entry decoding matches field names case-insensitively.
	for name := range fields {
		if strings.EqualFold(name, "status") {
			delete(fields, name)
		}
	}
	fields["status"] = json.RawMessage(`"` + domain.StatusExpired + `"`)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
