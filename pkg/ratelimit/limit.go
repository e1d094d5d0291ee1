// Package ratelimit counts attempts per key under sliding-window, fixed-window
// and token-bucket accounting. Callers decide what to do when a key is over
// budget; nothing here returns an error.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Strategy selects the accounting used for a Limit.
type Strategy int

const (
	// SlidingWindow keeps every attempt timestamp and counts those newer
	// than now-window. Smooth, but costs memory per attempt.
	SlidingWindow Strategy = iota
	// FixedWindow counts attempts in the bucket floor(now/window)*window.
	// O(1) per key; allows a burst at bucket boundaries.
	FixedWindow
	// TokenBucket refills Max tokens evenly over Window (x/time/rate).
	TokenBucket
)

func (s Strategy) String() string {
	switch s {
	case SlidingWindow:
		return "sliding_window"
	case FixedWindow:
		return "fixed_window"
	case TokenBucket:
		return "token_bucket"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the names produced by Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sliding_window", "sliding":
		return SlidingWindow, nil
	case "fixed_window", "fixed":
		return FixedWindow, nil
	case "token_bucket", "bucket":
		return TokenBucket, nil
	default:
		return 0, fmt.Errorf("ratelimit: unknown strategy %q", s)
	}
}

// Limit is a budget of Max attempts per Window.
type Limit struct {
	Max      int
	Window   time.Duration
	Strategy Strategy
}

// Valid reports whether the limit can be enforced at all.
func (l Limit) Valid() bool {
	return l.Max > 0 && l.Window > 0
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s %s", l.Max, l.Window, l.Strategy)
}

// Limiter is implemented by the in-memory and Redis limiters.
type Limiter interface {
	// Allow reports whether one more attempt would be within budget.
	// It does not record anything.
	Allow(ctx context.Context, key string, limit Limit) bool
	// Record counts an attempt and reports whether it was within budget.
	// Over-budget attempts are not counted.
	Record(ctx context.Context, key string, limit Limit) bool
	// RecordN counts n attempts as one unit: either all fit and are
	// recorded, or none are.
	RecordN(ctx context.Context, key string, limit Limit, n int) bool
	Remaining(ctx context.Context, key string, limit Limit) int
	// TimeUntilReset is how long until at least one more attempt fits.
	TimeUntilReset(ctx context.Context, key string, limit Limit) time.Duration
	Reset(ctx context.Context, key string)
	// Sweep drops idle keys and returns how many were removed.
	Sweep() int
}

// Category names a family of call sites sharing one budget.
type Category string

const (
	CategoryLogin  Category = "login"
	CategoryToken  Category = "token"
	CategoryAPI    Category = "api"
	CategoryPublic Category = "public"
)

// Policy maps categories to limits.
type Policy map[Category]Limit

// DefaultPolicy returns the built-in budgets:
//
//	login   5/min sliding (brute force prevention)
//	token  10/min sliding (JWT minting per subject)
//	api   100/min fixed
//	public 1000/min token bucket
func DefaultPolicy() Policy {
	return Policy{
		CategoryLogin:  {Max: 5, Window: time.Minute, Strategy: SlidingWindow},
		CategoryToken:  {Max: 10, Window: time.Minute, Strategy: SlidingWindow},
		CategoryAPI:    {Max: 100, Window: time.Minute, Strategy: FixedWindow},
		CategoryPublic: {Max: 1000, Window: time.Minute, Strategy: TokenBucket},
	}
}

// Get returns the limit for c, falling back to the default policy and then
// to the api budget for unknown categories.
func (p Policy) Get(c Category) Limit {
	if l, ok := p[c]; ok && l.Valid() {
		return l
	}
	def := DefaultPolicy()
	if l, ok := def[c]; ok {
		return l
	}
	return def[CategoryAPI]
}

// Override replaces Max and Window for c when the values are positive,
// keeping the existing strategy.
func (p Policy) Override(c Category, requests int, window time.Duration) {
	l := p.Get(c)
	if requests > 0 {
		l.Max = requests
	}
	if window > 0 {
		l.Window = window
	}
	p[c] = l
}

// Key joins a category and an identity into a limiter key ("login:alice").
func Key(c Category, identity string) string {
	return string(c) + ":" + identity
}
