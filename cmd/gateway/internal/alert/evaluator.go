package alert

import (
	"sync"

	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

// Evaluate returns the alerts for q.Symbol whose target is at or below the close price,
// in input order. Whether a returned alert fires once or on every tick is up to the caller.
func Evaluate(alerts []models.Alert, q models.Quote) []models.Alert {
	var matched []models.Alert
	for _, a := range alerts {
		if a.Symbol == q.Symbol && a.TargetPrice <= q.ClosePrice {
			matched = append(matched, a)
		}
	}
	return matched
}

// Set is one connection's live alerts. Duplicates are allowed.
type Set struct {
	mu     sync.RWMutex
	alerts []models.Alert
}

func (s *Set) Add(a models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

// Remove drops one alert equal to a and reports whether one was found.
func (s *Set) Remove(a models.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.alerts {
		if existing == a {
			s.alerts = append(s.alerts[:i:i], s.alerts[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the whole set, e.g. when restoring saved state.
func (s *Set) Replace(alerts []models.Alert) {
	cp := make([]models.Alert, len(alerts))
	copy(cp, alerts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = cp
}

// Snapshot returns a copy safe to read without the lock.
func (s *Set) Snapshot() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]models.Alert, len(s.alerts))
	copy(cp, s.alerts)
	return cp
}
