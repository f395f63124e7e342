package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/pkg/httpx"
	"github.com/aussiebroadwan/hwidgate/pkg/loadersdk"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

// HealthHandler serves the liveness and readiness endpoints. Both report the
// build version and the uptime since Started.
type HealthHandler struct {
	Started time.Time
	Version string
	Store   store.Registry
}

func (h HealthHandler) report(status string, checks *loadersdk.HealthChecks) loadersdk.HealthResponse {
	return loadersdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(h.Started).Round(time.Second).String(),
		Version: h.Version,
		Checks:  checks,
	}
}

// Livez godoc
//
//	@Summary		Liveness
//	@Description	Answers 200 while the process is serving requests. The registry is not consulted.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	loadersdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func (h HealthHandler) Livez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.report("ok", nil))
}

// Readyz godoc
//
//	@Summary		Readiness
//	@Description	Answers 200 when the HWID registry can be reached and 503 otherwise.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	loadersdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	loadersdk.HealthResponse	"registry unreachable"
//	@Router			/readyz [get].
func (h HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		slogx.FromContext(r.Context()).Warn("registry not ready", "error", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable,
			h.report("degraded", &loadersdk.HealthChecks{Registry: "error: unavailable"}))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.report("ok", &loadersdk.HealthChecks{Registry: "ok"}))
}
