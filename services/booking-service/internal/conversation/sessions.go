package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultSessionTTL = 15 * time.Minute

// Sessions holds in-flight registrations per user. An entry untouched for longer than the TTL
// is forgotten and the dialogue starts over.
type Sessions struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]session
	now     func() time.Time
}

type session struct {
	reg     Registration
	touched time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{ttl: ttl, entries: make(map[int64]session), now: time.Now}
}

// Get returns the user's registration, starting a new one when none is live. Either way the
// session's TTL starts over.
func (s *Sessions) Get(userID int64) Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	reg := NewRegistration(userID)
	if e, ok := s.entries[userID]; ok && now.Sub(e.touched) <= s.ttl {
		reg = e.reg
	}
	s.entries[userID] = session{reg: reg, touched: now}
	return reg
}

// Apply advances the user's registration with in and stores the result. A Complete
// registration is removed so a later dialogue starts fresh.
func (s *Sessions) Apply(userID int64, in Input) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	reg := NewRegistration(userID)
	if e, ok := s.entries[userID]; ok && now.Sub(e.touched) <= s.ttl {
		reg = e.reg
	}
	next, err := reg.Next(in)
	if err != nil {
		s.entries[userID] = session{reg: reg, touched: now}
		return reg, err
	}
	if next.State == Complete {
		delete(s.entries, userID)
	} else {
		s.entries[userID] = session{reg: next, touched: now}
	}
	return next, nil
}

func (s *Sessions) Reset(userID int64) {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.touched) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. Rounds that expire sessions are
// logged at debug with the number still open.
func (s *Sessions) RunSweeper(ctx context.Context, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = s.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				logger.Debug("registration sessions expired", "removed", removed, "open", s.Len())
			}
		}
	}
}

// Len reports how many registrations are in flight.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
