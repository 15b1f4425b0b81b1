package utils

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDHookFunc defines the signature for the NewID test hook.
// It returns an ID and a boolean indicating whether to override the default generation.
type IDHookFunc func() (id string, override bool)

// NewIDHook is a package-level variable that tests can set to override NewID behavior.
var NewIDHook IDHookFunc

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID string. IDs generated by one process sort in
// generation order, including several within the same millisecond.
func NewID() string {
	if NewIDHook != nil {
		if id, override := NewIDHook(); override {
			return id
		}
	}
	return NewIDAt(time.Now())
}

// NewIDAt returns a ULID carrying the given timestamp.
func NewIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ParseID validates an ID and returns it in canonical upper case form.
func ParseID(s string) (string, error) {
	id, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SequentialIDHook returns a hook yielding the given ids in order, then
// falling back to normal generation.
func SequentialIDHook(ids ...string) IDHookFunc {
	var mu sync.Mutex
	next := 0
	return func() (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "", false
		}
		id := ids[next]
		next++
		return id, true
	}
}
