// Package idx generates the lexicographically sortable identifiers used for
// outbound request ids and audit event ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID.
const Zero ID = ""

// Prefixes keep ids self-describing in logs.
const (
	PrefixRequest = "req"
	PrefixEvent   = "evt"
)

// ErrInvalid reports a malformed id string.
var ErrInvalid = errors.New("idx: invalid id")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID for the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a ULID for t. Useful in tests that need stable ordering.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// NewRequest returns a prefixed id suitable for the X-Request-ID header.
func NewRequest() ID { return withPrefix(PrefixRequest, New()) }

// NewEvent returns a prefixed id for audit events.
func NewEvent() ID { return withPrefix(PrefixEvent, New()) }

func withPrefix(prefix string, id ID) ID {
	return ID(prefix + "_" + string(id))
}

// Parse validates s, which may carry one of the known prefixes.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(stripPrefix(s)); err != nil {
		return Zero, ErrInvalid
	}

	return ID(s), nil
}

func stripPrefix(s string) string {
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Time extracts the embedded UTC timestamp, or the zero time for invalid ids.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(stripPrefix(string(id)))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
