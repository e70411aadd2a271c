package reload

import "sync"

// Tracker records which module identifiers each installed unit owns, so a
// reload invalidates exactly those and nothing else.
type Tracker struct {
	mu    sync.Mutex
	owned map[string][]string
}

func NewTracker() *Tracker {
	return &Tracker{owned: make(map[string][]string)}
}

// Record replaces the identifiers owned by owner.
func (t *Tracker) Record(owner string, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(ids) == 0 {
		delete(t.owned, owner)
		return
	}
	t.owned[owner] = append([]string(nil), ids...)
}

// Take returns and forgets the identifiers owned by owner.
func (t *Tracker) Take(owner string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.owned[owner]
	delete(t.owned, owner)
	return ids
}

// Owned returns the identifiers currently recorded for owner.
func (t *Tracker) Owned(owner string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.owned[owner]...)
}
