package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/metrics"
	"github.com/aussiebroadwan/careportal/internal/portal/store"
	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/aussiebroadwan/careportal/pkg/slogx"

	_ "github.com/aussiebroadwan/careportal/api/portal" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	core         *securecore.Core
	store        store.Store
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Metrics       *metrics.Metrics // Optional: request and decision metrics
	SecureCookies bool

	// IssuerToken is the credential the login controller presents to open
	// sessions. Without it session issuance is open in development and not
	// served at all in production.
	IssuerToken string
	Production  bool

	// ClientIP keys the per-IP rate limits (default: the direct peer).
	ClientIP httpx.KeyExtractor
}

func NewRouter(
	core *securecore.Core,
	st store.Store,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		Mux:          http.NewServeMux(),
		core:         core,
		store:        st,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		ClientIP:     httpx.IPKeyExtractor,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerFields()
	r.registerKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			CarePortal Security Core API
//	@version		0.1.0
//	@description	Session, CSRF and field encryption endpoints for the healthcare portal.
//	@description
//	@description				Mutating requests need a bearer access token and the X-CSRF-Token header matching the csrf-token cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/careportal
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented when metrics are enabled.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	h = httpx.Chain(h, mws...)
	if r.Metrics != nil {
		h = r.Metrics.Middleware(pattern, h)
	}
	r.Mux.Handle(pattern, h)
}

// secured verifies the bearer token and CSRF pair, charging the api budget
// per client IP.
func (r *Router) secured() httpx.Middleware {
	var a httpx.Authorizer = r.core
	if r.Metrics != nil {
		a = r.Metrics.InstrumentAuthorizer(a)
	}
	return httpx.SecurityMiddleware(a, httpx.SecurityOptions{
		RateKey:       r.ClientIP,
		SecureCookies: r.SecureCookies,
	})
}

func (r *Router) registerSessions() {
	limiter, policy := r.core.Limiter(), r.core.Limits()
	h := &SessionsHandler{Core: r.core, SecureCookies: r.SecureCookies}

	// POST /v1/sessions - login budget per IP, then the issuer credential
	switch {
	case r.IssuerToken != "":
		r.handle("POST /v1/sessions", http.HandlerFunc(h.HandleIssue),
			httpx.RateLimitByIP(limiter, policy, ratelimit.CategoryLogin, r.ClientIP),
			httpx.RequireIssuerToken(r.IssuerToken),
		)
	case r.Production:
		r.logger.Error("session issuance disabled: no issuer token configured")
	default:
		r.logger.Warn("session issuance is open to any caller: no issuer token configured")
		r.handle("POST /v1/sessions", http.HandlerFunc(h.HandleIssue),
			httpx.RateLimitByIP(limiter, policy, ratelimit.CategoryLogin, r.ClientIP),
		)
	}

	// POST /v1/sessions/refresh - token budget per IP
	r.handle("POST /v1/sessions/refresh", http.HandlerFunc(h.HandleRefresh),
		httpx.RateLimitByIP(limiter, policy, ratelimit.CategoryToken, r.ClientIP),
	)

	r.handle("DELETE /v1/sessions/current", http.HandlerFunc(h.HandleEnd), r.secured())
	r.handle("GET /v1/csrf", http.HandlerFunc(h.HandleCSRF), r.secured())
}

func (r *Router) registerFields() {
	h := &FieldsHandler{Core: r.core}

	r.handle("POST /v1/fields/protect", http.HandlerFunc(h.HandleProtect), r.secured())
	r.handle("POST /v1/fields/reveal", http.HandlerFunc(h.HandleReveal), r.secured())
}

func (r *Router) registerKeys() {
	limiter, policy := r.core.Limiter(), r.core.Limits()
	h := &KeysHandler{Core: r.core, Store: r.store, Metrics: r.Metrics}

	// POST /v1/keys/rotate - token budget per admin, on top of the api budget
	r.handle("POST /v1/keys/rotate", http.HandlerFunc(h.HandleRotate),
		r.secured(),
		httpx.RequireRole(jwtx.RoleAdmin),
		httpx.RateLimitByUser(limiter, policy, ratelimit.CategoryToken, r.ClientIP),
	)
	r.handle("GET /v1/keys", http.HandlerFunc(h.HandleList),
		r.secured(),
		httpx.RequireRole(jwtx.RoleAdmin, jwtx.RoleStaff),
	)
}

func (r *Router) registerSystem() {
	limiter, policy := r.core.Limiter(), r.core.Limits()

	// Health check endpoints - public budget (monitoring systems may poll frequently)
	r.handle("GET /livez", LivezHandler(r.startTime, r.buildVersion),
		httpx.RateLimitByIP(limiter, policy, ratelimit.CategoryPublic, r.ClientIP),
	)
	r.handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.core),
		httpx.RateLimitByIP(limiter, policy, ratelimit.CategoryPublic, r.ClientIP),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
