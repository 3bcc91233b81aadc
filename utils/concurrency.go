package utils

import (
	"sync"
	"time"
)

var (
	modActionLocks = make(map[string]time.Time)
	modActionMutex = &sync.Mutex{}
)

const modActionLockDuration = 10 * time.Second

// CheckAndSetModActionLock guards against a moderator double-submitting an
// action against the same target. If the pair is not locked it sets a new
// lock and returns true; otherwise it returns false.
func CheckAndSetModActionLock(moderatorID, targetID string) bool {
	key := moderatorID + ":" + targetID

	modActionMutex.Lock()
	defer modActionMutex.Unlock()

	if last, ok := modActionLocks[key]; ok {
		if time.Since(last) < modActionLockDuration {
			return false
		}
	}

	modActionLocks[key] = time.Now()
	return true
}
