package httpx

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, user ID, form field).
type KeyExtractor func(*http.Request) string

// Common key extractors

// IPKeyExtractor returns the direct peer address. Forwarding headers are
// ignored; use ClientIPExtractor behind a reverse proxy.
func IPKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientIPExtractor honours X-Forwarded-For and X-Real-IP only when the
// direct peer is one of the trusted proxies. X-Forwarded-For is walked from
// the right, skipping trusted hops, so a client cannot pick its own key by
// prepending addresses. With no trusted proxies it behaves like
// IPKeyExtractor.
func ClientIPExtractor(trusted []netip.Prefix) KeyExtractor {
	if len(trusted) == 0 {
		return IPKeyExtractor
	}
	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := IPKeyExtractor(r)
		if !isTrusted(peer) {
			return peer
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if _, err := netip.ParseAddr(hop); err != nil {
					break
				}
				if !isTrusted(hop) {
					return hop
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if _, err := netip.ParseAddr(xri); err == nil {
				return xri
			}
		}
		return peer
	}
}

// ParseTrustedProxies parses a comma separated list of IPs and CIDRs.
func ParseTrustedProxies(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// UserIDKeyExtractor extracts the user ID from the request context.
// Returns empty string if no user ID is found.
func UserIDKeyExtractor(r *http.Request) string {
	if userID, ok := r.Context().Value(CtxKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", UserIDKeyExtractor, IPKeyExtractor)
// would produce keys like "user123:192.168.1.1"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// RateLimitMiddleware records one attempt per request against the category's
// limit. The keyExtractor determines how requests are grouped.
func RateLimitMiddleware(l ratelimit.Limiter, category ratelimit.Category, limit ratelimit.Limit, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			id := keyExtractor(r)
			if id == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			key := ratelimit.Key(category, id)

			if !l.Record(ctx, key, limit) {
				retry := l.TimeUntilReset(ctx, key, limit)
				retryAfter := max(int((retry+time.Second-1)/time.Second), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit.Max))
				w.Header().Set("X-RateLimit-Window", limit.Window.String())

				log.Warn("rate limit exceeded",
					"category", string(category),
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					fmt.Sprintf("too many attempts, retry after %ds", retryAfter))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", l.Remaining(ctx, key, limit)))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP using the policy entry for category.
// clientIP decides how the address is read; nil means IPKeyExtractor.
func RateLimitByIP(l ratelimit.Limiter, p ratelimit.Policy, category ratelimit.Category, clientIP KeyExtractor) Middleware {
	if clientIP == nil {
		clientIP = IPKeyExtractor
	}
	return RateLimitMiddleware(l, category, p.Get(category), clientIP)
}

// RateLimitByUser limits by authenticated user ID plus client IP, falling
// back to the IP alone.
func RateLimitByUser(l ratelimit.Limiter, p ratelimit.Policy, category ratelimit.Category, clientIP KeyExtractor) Middleware {
	if clientIP == nil {
		clientIP = IPKeyExtractor
	}
	return RateLimitMiddleware(l, category, p.Get(category), CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		clientIP,
	))
}
