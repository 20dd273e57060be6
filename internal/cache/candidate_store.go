package cache

import (
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

const candidatePrefix = "candidates:"

// CandidateStore keeps each session's last scored candidate set so alternative routes can be
// cycled without another directions request. It implements navigation.CandidateStore.
type CandidateStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewCandidateStore stores selections in c for ttl
func NewCandidateStore(c *Cache, ttl time.Duration) *CandidateStore {
	return &CandidateStore{cache: c, ttl: ttl}
}

// Put caches a copy of sel under key
func (s *CandidateStore) Put(key string, sel *routing.Selection) error {
	return s.cache.Set(candidatePrefix+key, sel, s.ttl, "directions")
}

// Get returns a copy of the selection stored under key while it is fresh
func (s *CandidateStore) Get(key string) (*routing.Selection, bool) {
	var sel routing.Selection
	found, err := s.cache.Get(candidatePrefix+key, &sel)
	if err != nil || !found {
		return nil, false
	}
	return &sel, true
}

// Delete forgets the selection stored under key
func (s *CandidateStore) Delete(key string) {
	s.cache.Delete(candidatePrefix + key)
}
