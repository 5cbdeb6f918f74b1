package processor

// recentIDs remembers the last capacity event IDs seen by one worker.
// The oldest ID is forgotten first.
type recentIDs struct {
	seen map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(capacity int) *recentIDs {
	return &recentIDs{
		seen: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

func (r *recentIDs) Contains(id string) bool {
	_, ok := r.seen[id]
	return ok
}

func (r *recentIDs) Add(id string) {
	if r.Contains(id) {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.ring[r.next] = id
	r.seen[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}
