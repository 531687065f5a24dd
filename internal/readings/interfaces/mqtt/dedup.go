package mqtt

import (
	"sync"
	"time"
)

// Deduper remembers message ids for a TTL so broker redeliveries are dropped.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduper constructs a deduper holding at most max live ids.
func NewDeduper(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time), now: time.Now}
}

// ShouldProcess reports whether id has not been seen within the TTL and records it.
func (d *Deduper) ShouldProcess(id string) bool {
	if d == nil || id == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

// evict drops expired ids, then the soonest-expiring ones until under max.
func (d *Deduper) evict(now time.Time) {
	for id, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, id)
		}
	}
	for len(d.seen) > d.max {
		var oldestID string
		var oldest time.Time
		for id, exp := range d.seen {
			if oldestID == "" || exp.Before(oldest) {
				oldestID, oldest = id, exp
			}
		}
		delete(d.seen, oldestID)
	}
}

// Len returns the number of remembered ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
