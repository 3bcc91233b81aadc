package utils

import (
	"math/rand"
	"sync"
	"time"
)

// idEpoch is 2020-01-01T00:00:00Z in Unix milliseconds.
const idEpoch = 1577836800000

var (
	idMu   sync.Mutex
	lastID int64
)

// GenerateID returns a unique 64-bit id: milliseconds since the epoch in the
// high bits, random low bits. Ids are roughly monotonic with creation time;
// callers retry once with a fresh id on the rare collision.
func GenerateID() int64 {
	ms := time.Now().UnixMilli() - idEpoch
	id := ms<<22 | rand.Int63n(1<<22)

	idMu.Lock()
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	idMu.Unlock()
	return id
}
