package index

import "time"

// Stats describes the loader's state.
type Stats struct {
	Loaded      bool      `json:"loaded"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Records     int       `json:"records"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Fresh       bool      `json:"fresh"`
	Rebuilds    int64     `json:"rebuilds"`
	StoreLoads  int64     `json:"store_loads"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Stats returns a snapshot of the loader's state.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		ExpiresAt:  l.expiresAt,
		Rebuilds:   l.rebuilds,
		StoreLoads: l.storeLoads,
	}
	if c := l.current; c != nil {
		s.Loaded = true
		s.Fingerprint = c.Fingerprint
		s.Records = c.Len()
		s.BuiltAt = c.BuiltAt
		s.Fresh = l.expiresAt.IsZero() || l.now().Before(l.expiresAt)
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
		s.LastErrorAt = l.lastErrAt
	}
	return s
}
