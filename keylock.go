package adminAuth

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyLockStripes = 256

// keyLocks serializes the check-then-mutate sequences of one email. Keys
// hash onto a fixed set of mutexes, so unrelated keys may share a stripe.
type keyLocks struct {
	stripes [keyLockStripes]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%keyLockStripes]
	m.Lock()
	return m.Unlock
}
