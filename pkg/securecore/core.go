// Package securecore is the single entry point request handlers use for
// CSRF, session token and field encryption decisions. Component errors are
// classified and logged here; handlers only receive PublicErrors.
package securecore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"github.com/aussiebroadwan/careportal/pkg/csrf"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/idx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
)

// Redacted replaces protected values that cannot be revealed.
const Redacted = "[REDACTED]"

// Deps are the components the core composes. All are required.
type Deps struct {
	Limiter ratelimit.Limiter
	CSRF    *csrf.Store
	JWT     *jwtx.Manager
	Keys    *fieldcrypt.Manager
}

// Config tunes the core.
type Config struct {
	Limits     ratelimit.Policy // default ratelimit.DefaultPolicy()
	SessionTTL time.Duration    // default jwtx.DefaultRefreshTokenTTL
	Clock      clock.Clock
	Logger     *slog.Logger
}

// User identifies whom a session is issued for.
type User struct {
	ID    string
	Email string
	Role  jwtx.Role
}

// Session is everything a client needs after sign-in.
type Session struct {
	Record SessionRecord
	Tokens jwtx.TokenPair
	CSRF   csrf.Token
}

// AuthRequest carries the credentials presented with a request.
type AuthRequest struct {
	// SessionID is optional; when empty the bearer token's session is used.
	SessionID  string
	Method     string
	CSRFHeader string
	CSRFCookie string
	Bearer     string
	// RateKey identifies the caller for the api budget. Empty skips it.
	RateKey string
}

// Decision is the result of AuthorizeMutatingRequest.
type Decision struct {
	Allowed    bool
	Outcome    Outcome
	Kind       Kind
	Claims     *jwtx.Claims
	SessionID  string
	RetryAfter time.Duration
	// Rotate advises the caller to issue a fresh CSRF token.
	Rotate bool
}

// Public returns the sanitized error for a refused decision.
func (d Decision) Public() *PublicError {
	if d.Allowed {
		return nil
	}
	pe := &PublicError{Outcome: d.Outcome, RetryAfter: d.RetryAfter}
	switch d.Outcome {
	case OutcomeTooManyRequests:
		pe.Message = tooManyMessage(d.RetryAfter)
	case OutcomeForbidden:
		pe.Message = "request could not be verified"
	case OutcomeBadRequest:
		pe.Message = "malformed request"
	default:
		pe.Message = "authentication required"
	}
	return pe
}

// SweepResult counts what a housekeeping pass removed.
type SweepResult struct {
	CSRFTokens int
	Sessions   int
	RateKeys   int
	Revoked    int
}

// Core composes the security components behind one interface.
type Core struct {
	limiter ratelimit.Limiter
	csrf    *csrf.Store
	jwt     *jwtx.Manager
	keys    *fieldcrypt.Manager

	limits     ratelimit.Policy
	sessionTTL time.Duration
	clock      clock.Clock
	log        *slog.Logger
	sessions   *sessionStore
}

// New builds a Core.
func New(deps Deps, cfg Config) (*Core, error) {
	if deps.Limiter == nil || deps.CSRF == nil || deps.JWT == nil || deps.Keys == nil {
		return nil, errors.New("securecore: every dependency is required")
	}
	if cfg.Limits == nil {
		cfg.Limits = ratelimit.DefaultPolicy()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = jwtx.DefaultRefreshTokenTTL
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Core{
		limiter:    deps.Limiter,
		csrf:       deps.CSRF,
		jwt:        deps.JWT,
		keys:       deps.Keys,
		limits:     cfg.Limits,
		sessionTTL: cfg.SessionTTL,
		clock:      clock.OrReal(cfg.Clock),
		log:        log.With("component", "securecore"),
		sessions:   newSessionStore(),
	}, nil
}

// Limits returns the rate limit policy in force.
func (c *Core) Limits() ratelimit.Policy { return c.limits }

// Limiter returns the shared limiter.
func (c *Core) Limiter() ratelimit.Limiter { return c.limiter }

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// AuthorizeMutatingRequest runs the rate limit, bearer token, session and
// CSRF checks in that order. Safe methods skip the CSRF check.
func (c *Core) AuthorizeMutatingRequest(ctx context.Context, req AuthRequest) Decision {
	if req.RateKey != "" {
		limit := c.limits.Get(ratelimit.CategoryAPI)
		key := ratelimit.Key(ratelimit.CategoryAPI, req.RateKey)
		if !c.limiter.Record(ctx, key, limit) {
			retry := max(c.limiter.TimeUntilReset(ctx, key, limit), time.Second)
			return c.deny(ctx, OutcomeTooManyRequests, KindRateLimitExceeded, retry, "rate limit")
		}
	}

	if req.Bearer == "" {
		return c.deny(ctx, OutcomeAuthenticationRequired, KindTokenMissing, 0, "bearer")
	}
	claims, err := c.jwt.Verify(req.Bearer)
	if err != nil {
		kind := Classify(err)
		outcome := OutcomeAuthenticationRequired
		if kind == KindMalformedClaims {
			outcome = OutcomeBadRequest
		}
		return c.deny(ctx, outcome, kind, 0, "bearer")
	}
	if claims.Type != jwtx.TokenAccess {
		return c.deny(ctx, OutcomeAuthenticationRequired, KindMalformedClaims, 0, "bearer type")
	}

	// Only tokens minted for a session may authorize requests.
	if claims.SID == "" {
		return c.deny(ctx, OutcomeAuthenticationRequired, KindMalformedClaims, 0, "bearer session")
	}
	sid := claims.SID
	if req.SessionID != "" && req.SessionID != sid {
		return c.deny(ctx, OutcomeForbidden, KindTokenMismatch, 0, "session")
	}
	if _, ok := c.sessions.get(sid, c.clock.Now()); !ok {
		return c.deny(ctx, OutcomeAuthenticationRequired, KindTokenRevoked, 0, "session")
	}

	d := Decision{
		Allowed:   true,
		Outcome:   OutcomeAllowed,
		Claims:    claims,
		SessionID: sid,
	}
	if isSafeMethod(req.Method) {
		return d
	}

	if err := c.csrf.ValidateDoubleSubmit(req.CSRFHeader, req.CSRFCookie, sid); err != nil {
		return c.deny(ctx, OutcomeForbidden, Classify(err), 0, "csrf")
	}
	d.Rotate = c.csrf.ShouldRotate(req.CSRFHeader)
	return d
}

func (c *Core) deny(ctx context.Context, outcome Outcome, kind Kind, retry time.Duration, check string) Decision {
	c.log.WarnContext(ctx, "request refused", "check", check, "kind", kind.String(), "outcome", string(outcome))
	return Decision{Outcome: outcome, Kind: kind, RetryAfter: retry}
}

// IssueSession creates a session record, a JWT pair and a CSRF token. The
// record is stored before IssueSession returns, so the tokens validate
// immediately.
func (c *Core) IssueSession(ctx context.Context, user User) (*Session, error) {
	if user.ID == "" || !user.Role.Valid() {
		return nil, c.fail(ctx, "issue session", fmt.Errorf("%w: id and known role required", ErrInvalidUser))
	}

	now := c.clock.Now()
	sid := idx.NewKind(idx.KindSession, now).String()

	pair, err := c.jwt.IssuePair(ctx, jwtx.IssueRequest{
		Subject:   user.ID,
		Role:      user.Role,
		SessionID: sid,
	})
	if err != nil {
		return nil, c.fail(ctx, "issue session", err)
	}

	tok, err := c.csrf.Issue(sid)
	if err != nil {
		if _, rerr := c.jwt.RevokeSession(ctx, sid); rerr != nil {
			c.log.ErrorContext(ctx, "failed to roll back session tokens", "sid", sid, "error", rerr)
		}
		return nil, c.fail(ctx, "issue session", err)
	}

	rec := SessionRecord{
		SessionID: sid,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(c.sessionTTL),
	}
	c.sessions.put(rec)

	c.log.InfoContext(ctx, "session issued", "sid", sid, "sub", user.ID, "role", string(user.Role))
	return &Session{Record: rec, Tokens: pair, CSRF: tok}, nil
}

// RefreshSession exchanges a refresh token for a new access token while its
// session is still active.
func (c *Core) RefreshSession(ctx context.Context, refreshToken string) (jwtx.SignedToken, error) {
	claims, err := c.jwt.Verify(refreshToken)
	if err != nil {
		return jwtx.SignedToken{}, c.fail(ctx, "refresh session", err)
	}
	if claims.SID != "" {
		if _, ok := c.sessions.get(claims.SID, c.clock.Now()); !ok {
			return jwtx.SignedToken{}, c.fail(ctx, "refresh session", ErrSessionNotFound)
		}
	}

	tok, err := c.jwt.Refresh(ctx, refreshToken)
	if err != nil {
		return jwtx.SignedToken{}, c.fail(ctx, "refresh session", err)
	}
	return tok, nil
}

// EndSession revokes every CSRF token and JWT of the session and forgets
// its record. All three steps always run.
func (c *Core) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return c.fail(ctx, "end session", ErrSessionNotFound)
	}

	csrfRevoked := c.csrf.RevokeAllForSession(sessionID)
	jwtRevoked, err := c.jwt.RevokeSession(ctx, sessionID)
	existed := c.sessions.delete(sessionID)

	c.log.InfoContext(ctx, "session ended",
		"sid", sessionID,
		"csrf_revoked", csrfRevoked,
		"jwt_revoked", jwtRevoked,
		"had_record", existed,
	)
	if err != nil {
		// In-memory revocation already applied; only persistence failed.
		return c.fail(ctx, "end session", err)
	}
	return nil
}

// Session returns the live record for sessionID.
func (c *Core) Session(sessionID string) (SessionRecord, bool) {
	return c.sessions.get(sessionID, c.clock.Now())
}

// IssueCSRF mints an additional CSRF token for a live session.
func (c *Core) IssueCSRF(ctx context.Context, sessionID string) (csrf.Token, error) {
	if _, ok := c.Session(sessionID); !ok {
		return csrf.Token{}, c.fail(ctx, "issue csrf", ErrSessionNotFound)
	}
	tok, err := c.csrf.Issue(sessionID)
	if err != nil {
		return csrf.Token{}, c.fail(ctx, "issue csrf", err)
	}
	return tok, nil
}

// RotateCSRF replaces old with a fresh token for the session.
func (c *Core) RotateCSRF(ctx context.Context, old, sessionID string) (csrf.Token, error) {
	if _, ok := c.Session(sessionID); !ok {
		return csrf.Token{}, c.fail(ctx, "rotate csrf", ErrSessionNotFound)
	}
	tok, err := c.csrf.Rotate(old, sessionID)
	if err != nil {
		return csrf.Token{}, c.fail(ctx, "rotate csrf", err)
	}
	return tok, nil
}

// ProtectField encrypts plaintext as field.
func (c *Core) ProtectField(ctx context.Context, plaintext, field string) (fieldcrypt.EncryptedField, error) {
	f, err := c.keys.EncryptField(plaintext, field)
	if err != nil {
		return fieldcrypt.EncryptedField{}, c.fail(ctx, "protect field", err)
	}
	return f, nil
}

// ProtectFields encrypts several named values together.
func (c *Core) ProtectFields(ctx context.Context, values map[string]string) (fieldcrypt.EncryptedField, error) {
	f, err := c.keys.EncryptFields(values)
	if err != nil {
		return fieldcrypt.EncryptedField{}, c.fail(ctx, "protect fields", err)
	}
	return f, nil
}

// RevealField decrypts f.
func (c *Core) RevealField(ctx context.Context, f fieldcrypt.EncryptedField) (string, error) {
	pt, err := c.keys.DecryptField(f)
	if err != nil {
		return "", c.fail(ctx, "reveal field", err)
	}
	return pt, nil
}

// RevealFields decrypts a grouped field.
func (c *Core) RevealFields(ctx context.Context, f fieldcrypt.EncryptedField) (map[string]string, error) {
	values, err := c.keys.DecryptFields(f)
	if err != nil {
		return nil, c.fail(ctx, "reveal fields", err)
	}
	return values, nil
}

// RevealFieldOrRedacted decrypts f, or returns Redacted on any failure.
func (c *Core) RevealFieldOrRedacted(ctx context.Context, f fieldcrypt.EncryptedField) string {
	pt, err := c.RevealField(ctx, f)
	if err != nil {
		return Redacted
	}
	return pt
}

// RotateKey rotates the field encryption key on demand.
func (c *Core) RotateKey(ctx context.Context, reason string) (fieldcrypt.KeyStatus, error) {
	st, err := c.keys.RotateKey(ctx, reason)
	if err != nil {
		return fieldcrypt.KeyStatus{}, c.fail(ctx, "rotate key", err)
	}
	return st, nil
}

// RotateKeyIfDue applies the scheduled rotation and retention policy.
func (c *Core) RotateKeyIfDue(ctx context.Context) (bool, error) {
	rotated, err := c.keys.RotateIfDue(ctx)
	if err != nil {
		return false, c.fail(ctx, "scheduled rotation", err)
	}
	if !rotated {
		if dropped := c.keys.Prune(); len(dropped) > 0 {
			c.log.InfoContext(ctx, "retired encryption keys dropped", "count", len(dropped))
		}
	}
	return rotated, nil
}

// KeyStatus reports the current encryption key.
func (c *Core) KeyStatus() fieldcrypt.KeyStatus { return c.keys.Status() }

// Keys lists retained encryption key metadata.
func (c *Core) Keys() []fieldcrypt.KeyInfo { return c.keys.Keys() }

// Sweep purges expired CSRF tokens, sessions, idle rate-limit keys and
// expired blacklist entries. Sessions that expire are fully ended.
func (c *Core) Sweep(ctx context.Context) SweepResult {
	res := SweepResult{
		CSRFTokens: c.csrf.Purge(),
		RateKeys:   c.limiter.Sweep(),
	}

	for _, sid := range c.sessions.purge(c.clock.Now()) {
		res.CSRFTokens += c.csrf.RevokeAllForSession(sid)
		if _, err := c.jwt.RevokeSession(ctx, sid); err != nil {
			c.log.WarnContext(ctx, "failed to persist revocations for expired session", "sid", sid, "error", err)
		}
		res.Sessions++
	}

	res.Revoked = c.jwt.Sweep()
	return res
}

// ActiveSessions returns the number of live session records.
func (c *Core) ActiveSessions() int { return c.sessions.len() }

// fail logs err with its kind and returns the sanitized form.
func (c *Core) fail(ctx context.Context, op string, err error) error {
	kind := Classify(err)
	level := slog.LevelWarn
	if kind == KindInternal || kind == KindConfigurationInvalid {
		level = slog.LevelError
	}
	c.log.Log(ctx, level, op+" failed", "kind", kind.String(), "error", err)
	return &sanitized{pub: Sanitize(err), cause: err}
}

// sanitized wraps the internal cause so errors.Is keeps working inside the
// process while Error() only shows the public message.
type sanitized struct {
	pub   *PublicError
	cause error
}

func (e *sanitized) Error() string { return e.pub.Message }
func (e *sanitized) Unwrap() error { return e.cause }

func (e *sanitized) As(target any) bool {
	if p, ok := target.(**PublicError); ok {
		*p = e.pub
		return true
	}
	return false
}
