package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/store"
	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
)

// Pinger is implemented by limiter backends with a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LivezHandler godoc
//
//	@Summary		Health Check Endpoint
//	@Description	Liveness probe endpoint returning basic service health status, uptime, and version information
//	@Description	This endpoint always returns 200 OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	portalsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, portalsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint returning service health status and checks for critical dependencies
//	@Description	Includes the database, the encryption key set and the rate limiter backend
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	portalsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	portalsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get]
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	core *securecore.Core,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &portalsdk.HealthChecks{
			Database: "ok",
			Keys:     "ok",
			Limiter:  "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK
		degrade := func() {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if st == nil {
			checks.Database = "disabled"
		} else if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: unreachable"
			degrade()
		}

		if core.KeyStatus().CurrentKeyID == "" {
			checks.Keys = "error: no current key"
			degrade()
		}

		if p, ok := core.Limiter().(Pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				checks.Limiter = "error: unreachable"
				degrade()
			}
		}

		httpx.WriteJSON(w, statusCode, portalsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
