package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/service"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/pkg/httpx"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

// Caller-visible bodies. Details only ever go to the server log.
const (
	bodyInvalidHWID   = "invalid hwid"
	bodyConfigError   = "configuration error"
	bodyDataError     = "data error"
	bodyInternalError = "internal error"
	bodyUpstreamError = "upstream unavailable"
)

type Authorizer interface {
	Authorize(ctx context.Context, hwid domain.HWID) (domain.Decision, error)
}

type Fetcher interface {
	Fetch(ctx context.Context) (domain.Artifact, error)
}

type Recorder interface {
	Record(rec domain.AccessRecord) error
}

// LoaderHandler validates the HWID, checks it against the registry and
// serves the protected artifact.
type LoaderHandler struct {
	Authorizer        Authorizer
	Fetcher           Fetcher
	Recorder          Recorder // optional
	TrustProxyHeaders bool
	Now               func() time.Time
}

// ServeHTTP handles a loader request.
//
//	@Summary		Fetch the protected artifact
//	@Description	Returns the artifact as opaque text when the HWID holds a live grant.
//	@Description	Permanent grants never lapse. Temporal grants are marked expired on the first request after their expiry.
//	@Tags			Loader
//	@Produce		plain
//	@Param			hwid	query		string	true	"Hardware identifier, 32 hex digits with optional hyphens"
//	@Success		200		{string}	string	"Artifact bytes"
//	@Failure		400		{string}	string	"invalid hwid"
//	@Failure		403		{string}	string	"not_authorized or expired"
//	@Failure		500		{string}	string	"configuration error, data error or internal error"
//	@Failure		502		{string}	string	"upstream unavailable"
//	@Router			/v1/loader [get].
func (h *LoaderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw := r.URL.Query().Get("hwid")
	hwid, err := domain.ParseHWID(raw)
	if err != nil {
		log.Info("rejected malformed hwid", "length", len(raw))
		httpx.WriteText(w, http.StatusBadRequest, []byte(bodyInvalidHWID))
		return
	}

	decision, err := h.Authorizer.Authorize(ctx, hwid)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			log.Error("registry unparsable", "error", err)
			httpx.WriteText(w, http.StatusInternalServerError, []byte(bodyDataError))
			return
		}
		log.Error("registry unavailable", "error", err)
		httpx.WriteText(w, http.StatusInternalServerError, []byte(bodyConfigError))
		return
	}

	if !decision.Allowed {
		if decision.Reason == domain.ReasonConfigError {
			httpx.WriteText(w, http.StatusInternalServerError, []byte(bodyInternalError))
			return
		}
		log.Info("hwid denied", "hwid", hwid, "reason", decision.Reason)
		httpx.WriteText(w, http.StatusForbidden, []byte(decision.Reason))
		return
	}

	artifact, err := h.Fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, service.ErrUpstreamNotConfigured) {
			log.Error("upstream credentials missing", "error", err)
			httpx.WriteText(w, http.StatusInternalServerError, []byte(bodyConfigError))
			return
		}
		log.Error("artifact unavailable", "error", err)
		httpx.WriteText(w, http.StatusBadGateway, []byte(bodyUpstreamError))
		return
	}

	httpx.WriteText(w, http.StatusOK, artifact.Body)
	log.Info("artifact served", "hwid", hwid, "source", artifact.Source, "bytes", len(artifact.Body))

	h.record(r, hwid)
}

// record queues an access line after the response has been written. A
// failure here never changes what the caller received.
func (h *LoaderHandler) record(r *http.Request, hwid domain.HWID) {
	if h.Recorder == nil {
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	err := h.Recorder.Record(domain.AccessRecord{
		Time:      now(),
		HWID:      hwid,
		Addr:      httpx.ClientAddr(r, h.TrustProxyHeaders),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		slogx.FromContext(r.Context()).Warn("access not recorded", "error", err)
	}
}
