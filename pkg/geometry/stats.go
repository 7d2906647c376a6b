package geometry

import "sync/atomic"

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Merges  uint64 `json:"merges"`
	Modules int    `json:"modules"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters are always maintained, independent of prometheus metrics.
type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	merges atomic.Uint64
}
