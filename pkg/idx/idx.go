// Package idx mints lexicographically sortable identifiers for sessions,
// encryption keys and revocation rows.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID, optionally carrying a short kind prefix ("sess_01H...").
type ID string

// Zero represents the zero value ID, don't use this unless its a placeholder.
const Zero ID = ""

// Kind prefixes used across the portal.
const (
	KindSession = "sess"
	KindKey     = "key"
	KindToken   = "jti"
)

const sep = "_"

// ErrInvalid reports a malformed identifier.
var ErrInvalid = errors.New("idx: invalid id")

var (
	globalOnce sync.Once
	global     *generator
)

// generator safely produces ULIDs concurrently from a monotonic source.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

func gen() *generator {
	globalOnce.Do(func() {
		global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return global
}

// New returns an unprefixed ULID for the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt generates an unprefixed ID at t, useful with injected clocks.
func NewAt(t time.Time) ID {
	return ID(gen().newAt(t).String())
}

// NewKind returns a prefixed ID such as "sess_01HQ7T...".
func NewKind(kind string, t time.Time) ID {
	return ID(kind + sep + gen().newAt(t).String())
}

// Parse validates s. Both bare and prefixed forms are accepted.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	body := s
	if i := strings.LastIndex(s, sep); i >= 0 {
		if i == 0 {
			return Zero, ErrInvalid
		}
		body = s[i+1:]
	}
	if _, err := ulid.ParseStrict(body); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// MustParse parses or panics. Useful for hard-coded IDs in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Kind returns the prefix, or "" for bare IDs.
func (id ID) Kind() string {
	kind, _, ok := strings.Cut(string(id), sep)
	if !ok {
		return ""
	}
	return kind
}

// Time extracts the embedded UTC timestamp. Invalid IDs yield the zero time.
func (id ID) Time() time.Time {
	body := string(id)
	if i := strings.LastIndex(body, sep); i >= 0 {
		body = body[i+1:]
	}
	u, err := ulid.ParseStrict(body)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
