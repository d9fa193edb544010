// Package ids generates the time-sortable identifiers assigned to outbound
// messages and correlation chains.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a 26-character ULID. Identifiers generated by one process are
// strictly increasing.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with the given time.
func NewAt(at time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// Time extracts the creation time embedded in a ULID.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}
