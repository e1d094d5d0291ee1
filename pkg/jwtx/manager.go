package jwtx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"github.com/aussiebroadwan/careportal/pkg/cryptox"
	"github.com/aussiebroadwan/careportal/pkg/idx"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
	"github.com/golang-jwt/jwt/v5"
)

// Config configures a Manager.
type Config struct {
	// Secret signs every token. Must be at least MinSecretBytes when
	// Production is set. Outside production an empty secret is replaced by
	// a generated one and Manager.Ephemeral reports true.
	Secret     []byte
	Production bool

	Issuer   string
	Audience []string

	AccessTTL  time.Duration // default DefaultAccessTokenTTL
	RefreshTTL time.Duration // default DefaultRefreshTokenTTL
	Leeway     time.Duration // default DefaultLeeway

	// IssueLimit caps minting per subject. Zero means 10 per minute,
	// sliding window.
	IssueLimit ratelimit.Limit

	Clock       clock.Clock
	Limiter     ratelimit.Limiter // nil means a private in-memory limiter
	Revocations RevocationStore   // optional
	Logger      *slog.Logger
}

// IssueRequest describes a token to mint.
type IssueRequest struct {
	Subject   string
	Role      Role
	SessionID string
	Type      TokenType // default TokenAccess
	TTL       time.Duration
	Attrs     map[string]string
}

// SignedToken is a minted token together with the claims it carries.
type SignedToken struct {
	Token     string
	Claims    Claims
	ExpiresAt time.Time
}

// TokenPair is an access token and the refresh token that can renew it.
type TokenPair struct {
	Access  SignedToken
	Refresh SignedToken
}

// Manager issues, verifies, refreshes and revokes portal JWTs.
type Manager struct {
	cfg       Config
	signer    *HS256Signer
	blacklist *Blacklist
	limiter   ratelimit.Limiter
	clock     clock.Clock
	log       *slog.Logger
	ephemeral bool

	mu       sync.Mutex
	sessions map[string]map[string]time.Time // sid -> jti -> exp
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "jwtx")

	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrConfigurationInvalid)
	}

	secret := cfg.Secret
	ephemeral := false
	switch {
	case cfg.Production && len(secret) < MinSecretBytes:
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes in production", ErrConfigurationInvalid, MinSecretBytes)
	case len(secret) == 0:
		generated, err := cryptox.RandomBytes(MinSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate ephemeral secret: %w", err)
		}
		secret = generated
		ephemeral = true
		log.Warn("EPHEMERAL signing secret generated; tokens will not survive a restart (non-production only)")
	case len(secret) < MinSecretBytes:
		log.Warn("signing secret shorter than production minimum", "bytes", len(secret), "min", MinSecretBytes)
	}

	signer, err := NewHS256Signer(secret)
	if err != nil {
		return nil, err
	}
	cfg.Secret = nil

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = DefaultLeeway
	}
	if !cfg.IssueLimit.Valid() {
		cfg.IssueLimit = ratelimit.DefaultPolicy().Get(ratelimit.CategoryToken)
	}

	clk := clock.OrReal(cfg.Clock)
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(clk)
	}

	return &Manager{
		cfg:       cfg,
		signer:    signer,
		blacklist: NewBlacklist(clk, cfg.Leeway, cfg.Revocations, log),
		limiter:   limiter,
		clock:     clk,
		log:       log,
		ephemeral: ephemeral,
		sessions:  make(map[string]map[string]time.Time),
	}, nil
}

// Ephemeral reports whether the signing secret was generated at startup.
func (m *Manager) Ephemeral() bool { return m.ephemeral }

// Blacklist exposes the revocation set for housekeeping.
func (m *Manager) Blacklist() *Blacklist { return m.blacklist }

// Issue mints one token, charging the subject's issuance budget.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (SignedToken, error) {
	if err := m.checkRequest(&req); err != nil {
		return SignedToken{}, err
	}
	if err := m.charge(ctx, req.Subject, 1); err != nil {
		return SignedToken{}, err
	}
	return m.mint(req)
}

// IssuePair mints an access and a refresh token for the same session. Both
// count against the subject's budget; nothing is minted unless both fit.
func (m *Manager) IssuePair(ctx context.Context, req IssueRequest) (TokenPair, error) {
	req.Type = TokenAccess
	if err := m.checkRequest(&req); err != nil {
		return TokenPair{}, err
	}
	if err := m.charge(ctx, req.Subject, 2); err != nil {
		return TokenPair{}, err
	}

	access, err := m.mint(req)
	if err != nil {
		return TokenPair{}, err
	}

	refreshReq := req
	refreshReq.Type = TokenRefresh
	refreshReq.TTL = 0
	refresh, err := m.mint(refreshReq)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Verify checks, in order: signature and structure, issuer, audience,
// expiry, issued-at, revocation, role, token type.
func (m *Manager) Verify(token string) (*Claims, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	if err := claims.ValidateStructure(); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if err := claims.ValidateIssuer(m.cfg.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(m.cfg.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(now, m.cfg.Leeway); err != nil {
		return nil, err
	}
	if err := claims.ValidateIssuedAt(now, m.cfg.Leeway); err != nil {
		return nil, err
	}
	if m.blacklist.Contains(claims.ID) {
		return nil, ErrRevoked
	}
	if err := claims.ValidateRole(); err != nil {
		return nil, err
	}
	if err := claims.ValidateType(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh exchanges a refresh token for exactly one new access token. Access
// tokens are refused with ErrWrongTokenType.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (SignedToken, error) {
	claims, err := m.Verify(refreshToken)
	if err != nil {
		return SignedToken{}, err
	}
	if claims.Type != TokenRefresh {
		return SignedToken{}, ErrWrongTokenType
	}

	return m.Issue(ctx, IssueRequest{
		Subject:   claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SID,
		Type:      TokenAccess,
		Attrs:     claims.Attrs,
	})
}

// Revoke blacklists a signed token until its original expiry. The token
// must carry a valid signature; expired tokens are accepted and ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return err
	}
	if err := claims.ValidateStructure(); err != nil {
		return err
	}
	return m.RevokeID(ctx, claims.ID, claims.Expiry())
}

// RevokeID blacklists jti until exp.
func (m *Manager) RevokeID(ctx context.Context, jti string, exp time.Time) error {
	if err := m.blacklist.Add(ctx, jti, exp); err != nil {
		return err
	}
	m.log.InfoContext(ctx, "token revoked", "jti", jti, "exp", exp)
	return nil
}

// RevokeSession revokes every unexpired token issued for sid and returns how
// many were revoked.
func (m *Manager) RevokeSession(ctx context.Context, sid string) (int, error) {
	if sid == "" {
		return 0, nil
	}

	m.mu.Lock()
	issued := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()

	now := m.clock.Now()
	revoked := 0
	var firstErr error
	for jti, exp := range issued {
		if now.After(exp.Add(m.cfg.Leeway)) {
			continue
		}
		if err := m.blacklist.Add(ctx, jti, exp); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		revoked++
	}
	if revoked > 0 {
		m.log.InfoContext(ctx, "session tokens revoked", "sid", sid, "count", revoked)
	}
	return revoked, firstErr
}

// Sweep evicts expired blacklist entries and forgets expired tokens in the
// per-session index. It returns the number of blacklist entries removed.
func (m *Manager) Sweep() int {
	removed := m.blacklist.Sweep()

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, issued := range m.sessions {
		for jti, exp := range issued {
			if now.After(exp.Add(m.cfg.Leeway)) {
				delete(issued, jti)
			}
		}
		if len(issued) == 0 {
			delete(m.sessions, sid)
		}
	}
	return removed
}

// Close stops pending blacklist timers.
func (m *Manager) Close() {
	m.blacklist.Stop()
}

func (m *Manager) checkRequest(req *IssueRequest) error {
	if req.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrMalformedClaims)
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrRole, req.Role)
	}
	if req.Type == "" {
		req.Type = TokenAccess
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown token type %q", ErrMalformedClaims, req.Type)
	}
	return nil
}

func (m *Manager) charge(ctx context.Context, subject string, n int) error {
	key := ratelimit.Key(ratelimit.CategoryToken, subject)
	limit := m.cfg.IssueLimit

	if !m.limiter.RecordN(ctx, key, limit, n) {
		return m.rateLimited(ctx, key, subject, limit)
	}
	return nil
}

func (m *Manager) rateLimited(ctx context.Context, key, subject string, limit ratelimit.Limit) error {
	retry := max(m.limiter.TimeUntilReset(ctx, key, limit), time.Second)
	m.log.WarnContext(ctx, "token issuance rate limited", "sub", subject, "retry_after", retry)
	return &RateLimitError{Subject: subject, RetryAfter: retry}
}

func (m *Manager) mint(req IssueRequest) (SignedToken, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.cfg.AccessTTL
		if req.Type == TokenRefresh {
			ttl = m.cfg.RefreshTTL
		}
	}

	now := m.clock.Now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   req.Subject,
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        idx.NewKind(idx.KindToken, now).String(),
		},
		Role:  req.Role,
		Type:  req.Type,
		SID:   req.SessionID,
		Attrs: req.Attrs,
	}

	token, err := m.signer.Sign(claims)
	if err != nil {
		return SignedToken{}, err
	}

	if req.SessionID != "" {
		m.mu.Lock()
		issued, ok := m.sessions[req.SessionID]
		if !ok {
			issued = make(map[string]time.Time)
			m.sessions[req.SessionID] = issued
		}
		issued[claims.ID] = claims.Expiry()
		m.mu.Unlock()
	}

	return SignedToken{Token: token, Claims: claims, ExpiresAt: claims.Expiry()}, nil
}
