package models

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a prefixed, lexicographically sortable record identifier,
// e.g. "ws_01J8X2K9ZP3Q4R5S6T7V8W9XYZ".
func NewID(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewWorkspaceID returns a fresh workspace identifier.
func NewWorkspaceID() string { return NewID("ws") }

// NewBuildID returns a fresh build identifier.
func NewBuildID() string { return NewID("bld") }
