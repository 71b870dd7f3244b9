package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager assigns users to stable partition buckets so the Scylla users
// table spreads across nodes without hot partitions. The bucket count must
// not change once data exists; bucket assignment is part of the primary key.
type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewManager(userBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = 64
	}
	m := &Manager{userBuckets: userBuckets}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// UserBucket returns the partition bucket for a user id.
func (m *Manager) UserBucket(userID string) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(userID))
	return int(hasher.Sum64() % uint64(m.userBuckets))
}
