package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store/drivers/file"
)

const testHWID domain.HWID = "abcd1234-ef56-7890-abcd-ef1234567890"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memRegistry is an in-memory store.Registry with an injectable write error.
type memRegistry struct {
	mu       sync.Mutex
	reg      domain.Registry
	loadErr  error
	writeErr error
	writes   int
}

func (m *memRegistry) Load(context.Context) (domain.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.reg.Clone(), nil
}

func (m *memRegistry) ExpireEntry(_ context.Context, key string, observed domain.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return false, m.writeErr
	}
	current, ok := m.reg[key]
	if !ok || !store.Expirable(current, observed) {
		return false, nil
	}
	m.reg[key] = current.Expire()
	return true, nil
}

func (m *memRegistry) Ping(context.Context) error { return nil }
func (m *memRegistry) Close() error               { return nil }

func newAuthorizer(reg store.Registry) *AuthorizeService {
	return &AuthorizeService{
		Store:   reg,
		Metrics: metrics.New(),
		Now:     func() time.Time { return fixedNow },
	}
}

func TestEvaluateStateMachine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		entry *domain.Entry
		want  domain.Decision
	}{
		{"not found", nil, domain.Deny(domain.ReasonNotAuthorized)},
		{"unauthorized", &domain.Entry{Status: domain.StatusUnauthorized, Kind: domain.KindPermanent}, domain.Deny(domain.ReasonNotAuthorized)},
		{"unknown status", &domain.Entry{Status: "suspended", Kind: domain.KindPermanent}, domain.Deny(domain.ReasonNotAuthorized)},
		{"already expired", &domain.Entry{Status: domain.StatusExpired, Kind: domain.KindTemporal, ExpiresAt: "2020-01-01"}, domain.Deny(domain.ReasonExpired)},
		{"permanent", &domain.Entry{Status: domain.StatusAuthorized, Kind: domain.KindPermanent}, domain.Allow()},
		{"permanent ignores expiry", &domain.Entry{Status: domain.StatusAuthorized, Kind: domain.KindPermanent, ExpiresAt: "2000-01-01"}, domain.Allow()},
		{"temporal future", &domain.Entry{Status: domain.StatusAuthorized, Kind: domain.KindTemporal, ExpiresAt: "2025-06-01T12:00:01Z"}, domain.Allow()},
		{"temporal missing expiry", &domain.Entry{Status: domain.StatusAuthorized, Kind: domain.KindTemporal}, domain.Deny(domain.ReasonConfigError)},
		{"temporal malformed expiry", &domain.Entry{Status: domain.StatusAuthorized, Kind: domain.KindTemporal, ExpiresAt: "next tuesday"}, domain.Deny(domain.ReasonConfigError)},
		{"unknown kind", &domain.Entry{Status: domain.StatusAuthorized, Kind: "lifetime"}, domain.Deny(domain.ReasonConfigError)},
		{"empty kind", &domain.Entry{Status: domain.StatusAuthorized}, domain.Deny(domain.ReasonConfigError)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg := &memRegistry{reg: domain.Registry{}}
			if tc.entry != nil {
				reg.reg[testHWID.String()] = *tc.entry
			}

			got, err := newAuthorizer(reg).Authorize(context.Background(), testHWID)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Zero(t, reg.writes, "only a live expiry may write")
		})
	}
}

func TestEvaluateExpiresTemporalGrant(t *testing.T) {
	t.Parallel()

	for _, expiresAt := range []string{"2025-06-01T11:59:59Z", "2025-06-01 12:00:00"} {
		t.Run(expiresAt, func(t *testing.T) {
			t.Parallel()
			reg := &memRegistry{reg: domain.Registry{
				testHWID.String(): {Status: domain.StatusAuthorized, Kind: domain.KindTemporal, ExpiresAt: expiresAt},
				"other":           {Status: domain.StatusAuthorized, Kind: domain.KindPermanent},
			}}
			svc := newAuthorizer(reg)

			got, err := svc.Authorize(context.Background(), testHWID)
			require.NoError(t, err)
			require.Equal(t, domain.Deny(domain.ReasonExpired), got)
			require.Equal(t, domain.StatusExpired, reg.reg[testHWID.String()].Status)
			require.Equal(t, domain.StatusAuthorized, reg.reg["other"].Status)
			require.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Expirations.WithLabelValues("written")))

			again, err := svc.Authorize(context.Background(), testHWID)
			require.NoError(t, err)
			require.Equal(t, got, again)
			require.Equal(t, 1, reg.writes)
		})
	}
}

func TestEvaluateDeniesWhenExpiryWriteFails(t *testing.T) {
	t.Parallel()

	reg := &memRegistry{
		reg: domain.Registry{
			testHWID.String(): {Status: domain.StatusAuthorized, Kind: domain.KindTemporal, ExpiresAt: "2020-01-01"},
		},
		writeErr: store.ErrWrite,
	}
	svc := newAuthorizer(reg)

	got, err := svc.Authorize(context.Background(), testHWID)
	require.NoError(t, err)
	require.Equal(t, domain.Deny(domain.ReasonExpired), got)
	require.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Expirations.WithLabelValues("error")))
}

func TestEvaluateWritesThroughCanonicalKey(t *testing.T) {
	t.Parallel()

	reg := &memRegistry{reg: domain.Registry{
		"ABCD1234EF567890ABCDEF1234567890": {Status: domain.StatusAuthorized, Kind: domain.KindTemporal, ExpiresAt: "2020-01-01"},
	}}

	got, err := newAuthorizer(reg).Authorize(context.Background(), testHWID)
	require.NoError(t, err)
	require.Equal(t, domain.Deny(domain.ReasonExpired), got)
	require.Len(t, reg.reg, 1)
	require.Equal(t, domain.StatusExpired, reg.reg["ABCD1234EF567890ABCDEF1234567890"].Status)
}

func TestAuthorizeSurfacesLoadErrors(t *testing.T) {
	t.Parallel()

	for _, loadErr := range []error{store.ErrUnavailable, store.ErrCorrupt} {
		reg := &memRegistry{loadErr: loadErr}
		_, err := newAuthorizer(reg).Authorize(context.Background(), testHWID)
		require.True(t, errors.Is(err, loadErr))
	}
}

func TestExpiryRoundTripOnFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hwids.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
    "abcd1234-ef56-7890-abcd-ef1234567890": {"status": "authorized", "kind": "temporal", "expiresAt": "2024-01-01T00:00:00Z"},
    "11111111-2222-3333-4444-555555555555": {"status": "authorized", "kind": "permanent"},
    "99999999-8888-7777-6666-555555555555": {"status": "unauthorized", "kind": "permanent"}
}`), 0o600))

	fs := file.NewStore(path)
	before, err := fs.Load(context.Background())
	require.NoError(t, err)

	got, err := newAuthorizer(fs).Authorize(context.Background(), testHWID)
	require.NoError(t, err)
	require.Equal(t, domain.Deny(domain.ReasonExpired), got)

	after, err := fs.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, after[testHWID.String()].Status)

	delete(before, testHWID.String())
	delete(after, testHWID.String())
	require.Equal(t, before, after)
}
