/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package state

import (
	"sync"
	"time"
)

// RecentRun stores the outcome of one sequence run.
type RecentRun struct {
	UserID     string    `json:"user_id"`
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store keeps in-memory run state: which users are running right now and
// a bounded history of recent runs.
type Store struct {
	mu      sync.RWMutex
	running map[string]struct{}
	recent  []RecentRun
	limit   int
}

// NewStore creates a scheduler state store holding at most limit recent
// runs. A non-positive limit defaults to 256.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 256
	}
	return &Store{
		running: make(map[string]struct{}),
		recent:  make([]RecentRun, 0, 64),
		limit:   limit,
	}
}

// TryLock marks userID as running. It returns false if a run is already in
// flight for that user.
func (s *Store) TryLock(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[userID]; busy {
		return false
	}
	s.running[userID] = struct{}{}
	return true
}

// Unlock releases userID.
func (s *Store) Unlock(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, userID)
}

// Running reports whether userID has a run in flight.
func (s *Store) Running(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.running[userID]
	return ok
}

// Add registers a finished run, evicting the oldest beyond the limit.
func (s *Store) Add(run RecentRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, run)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

// Recent returns the runs of userID, newest first. An empty userID returns
// every user's runs.
func (s *Store) Recent(userID string) []RecentRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RecentRun, 0, len(s.recent))
	for i := len(s.recent) - 1; i >= 0; i-- {
		if userID == "" || s.recent[i].UserID == userID {
			out = append(out, s.recent[i])
		}
	}
	return out
}

// Prune removes entries that finished before cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.recent[:0]
	for _, r := range s.recent {
		if r.FinishedAt.After(cutoff) {
			filtered = append(filtered, r)
		}
	}
	s.recent = filtered
}
