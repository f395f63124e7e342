package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
)

// Store keeps the registry in a single JSON or YAML file.
//
// Reads never lock: every write replaces the file atomically, so a reader
// sees either the old or the new registry and never a truncated one. Writes
// are serialised by mu, which makes this process the single writer. Running
// several gateway processes against one file is not supported; use the
// sqlite or redis driver for that.
type Store struct {
	path  string
	codec codec

	mu sync.Mutex
}

var _ store.Registry = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{path: path, codec: codecFor(path)}
}

func (s *Store) Load(ctx context.Context) (domain.Registry, error) {
	return s.read()
}

func (s *Store) ExpireEntry(ctx context.Context, key string, observed domain.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read under the lock so the write is based on the latest file, not
	// the snapshot the caller evaluated.
	raw, reg, err := s.readRaw()
	if err != nil {
		return false, err
	}

	current, ok := reg[key]
	if !ok || !store.Expirable(current, observed) {
		return false, nil
	}

	data, err := s.codec.expire(raw, key)
	if err != nil {
		return false, fmt.Errorf("%w: encode: %v", store.ErrWrite, err)
	}

	if err := renameio.WriteFile(s.path, data, 0o644, renameio.WithExistingPermissions()); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	return true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() (domain.Registry, error) {
	_, reg, err := s.readRaw()
	return reg, err
}

func (s *Store) readRaw() ([]byte, domain.Registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s does not exist", store.ErrUnavailable, s.path)
		}
		return nil, nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	reg, err := s.codec.decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	if reg == nil {
		return nil, nil, fmt.Errorf("%w: %s holds no mapping", store.ErrCorrupt, s.path)
	}
	return data, reg, nil
}
