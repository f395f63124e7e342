package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

// expireTimeout bounds the registry write triggered by an expired grant. The
// write runs detached from the request context so a caller hanging up does
// not leave the entry un-expired.
const expireTimeout = 5 * time.Second

// AuthorizeService decides whether an HWID may receive content.
type AuthorizeService struct {
	Store   store.Registry
	Metrics *metrics.Metrics
	Now     func() time.Time // defaults to time.Now
}

// Authorize loads a fresh registry snapshot and evaluates hwid against it.
// An error is returned only when the registry cannot be loaded; it wraps
// store.ErrUnavailable or store.ErrCorrupt.
func (s *AuthorizeService) Authorize(ctx context.Context, hwid domain.HWID) (domain.Decision, error) {
	reg, err := s.Store.Load(ctx)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.Evaluate(ctx, reg, hwid), nil
}

// Evaluate applies the authorization rules to a loaded registry. Expired
// temporal grants are written back as expired before the denial is
// returned; a failed write is logged and the caller is still denied.
func (s *AuthorizeService) Evaluate(ctx context.Context, reg domain.Registry, hwid domain.HWID) domain.Decision {
	d := s.evaluate(ctx, reg, hwid)
	s.Metrics.ObserveDecision(d.Outcome())
	return d
}

func (s *AuthorizeService) evaluate(ctx context.Context, reg domain.Registry, hwid domain.HWID) domain.Decision {
	log := slogx.FromContext(ctx)

	key, entry, ok := reg.Lookup(hwid)
	switch {
	case !ok:
		return domain.Deny(domain.ReasonNotAuthorized)
	case entry.Status == domain.StatusExpired:
		// Answers expired, not not_authorized as for other non-authorized
		// statuses, so re-evaluation matches the request that expired it.
		return domain.Deny(domain.ReasonExpired)
	case entry.Status != domain.StatusAuthorized:
		return domain.Deny(domain.ReasonNotAuthorized)
	}

	switch entry.Kind {
	case domain.KindPermanent:
		return domain.Allow()

	case domain.KindTemporal:
		expiry, err := entry.Expiry()
		if err != nil {
			log.Error("temporal grant has unusable expiry", "hwid", key, "error", err)
			return domain.Deny(domain.ReasonConfigError)
		}
		if s.now().Before(expiry) {
			return domain.Allow()
		}
		s.expire(ctx, key, entry)
		return domain.Deny(domain.ReasonExpired)

	default:
		log.Error("authorized entry has unknown kind", "hwid", key, "kind", entry.Kind)
		return domain.Deny(domain.ReasonConfigError)
	}
}

func (s *AuthorizeService) expire(ctx context.Context, key string, entry domain.Entry) {
	log := slogx.FromContext(ctx)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), expireTimeout)
	defer cancel()

	changed, err := s.Store.ExpireEntry(wctx, key, entry)
	switch {
	case err != nil:
		s.Metrics.ObserveExpiration("error")
		log.Error("failed to persist expiration", "hwid", key, "expires_at", entry.ExpiresAt, "error", err)
	case changed:
		s.Metrics.ObserveExpiration("written")
		log.Info("temporal grant expired", "hwid", key, "expires_at", entry.ExpiresAt)
	default:
		s.Metrics.ObserveExpiration("noop")
		log.Debug("expiration already persisted by another writer", "hwid", key)
	}
}

func (s *AuthorizeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
