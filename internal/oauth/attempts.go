package oauth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// AttemptStore keeps ephemeral authorization attempts keyed by state.
// Get returns ErrInvalidState for unknown states and for attempts older than the TTL.
// Claim atomically moves a pending attempt to processing; only one caller
// wins, the others get ErrInvalidState.
type AttemptStore interface {
	Put(ctx context.Context, attempt *models.AuthAttempt) error
	Get(ctx context.Context, state string) (*models.AuthAttempt, error)
	Claim(ctx context.Context, state string) (*models.AuthAttempt, error)
	ListPending(ctx context.Context, userID int64) ([]*models.AuthAttempt, error)
}

// MemoryAttemptStore is a process-local AttemptStore
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]models.AuthAttempt
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryAttemptStore creates a store that forgets attempts after ttl
func NewMemoryAttemptStore(ttl time.Duration, now func() time.Time) *MemoryAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptStore{
		attempts: make(map[string]models.AuthAttempt),
		ttl:      ttl,
		now:      now,
	}
}

// Put stores a copy of attempt and evicts expired entries
func (s *MemoryAttemptStore) Put(_ context.Context, attempt *models.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	s.attempts[attempt.State] = *attempt
	return nil
}

// Get returns a copy of the attempt stored for state
func (s *MemoryAttemptStore) Get(_ context.Context, state string) (*models.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[state]
	if !ok {
		return nil, ErrInvalidState
	}
	if s.expired(attempt) {
		delete(s.attempts, state)
		return nil, ErrInvalidState
	}
	return &attempt, nil
}

// Claim marks the pending attempt for state as processing and returns it
func (s *MemoryAttemptStore) Claim(_ context.Context, state string) (*models.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[state]
	if !ok || attempt.Status != models.AttemptPending {
		return nil, ErrInvalidState
	}
	if s.expired(attempt) {
		delete(s.attempts, state)
		return nil, ErrInvalidState
	}

	attempt.Status = models.AttemptProcessing
	s.attempts[state] = attempt
	return &attempt, nil
}

// ListPending returns unexpired attempts of a user that have no outcome yet, oldest first
func (s *MemoryAttemptStore) ListPending(_ context.Context, userID int64) ([]*models.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()

	var pending []*models.AuthAttempt
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.Status.InProgress() {
			a := attempt
			pending = append(pending, &a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *MemoryAttemptStore) expired(attempt models.AuthAttempt) bool {
	return s.now().Sub(attempt.CreatedAt) > s.ttl
}

func (s *MemoryAttemptStore) evictLocked() {
	for state, attempt := range s.attempts {
		if s.expired(attempt) {
			delete(s.attempts, state)
		}
	}
}
