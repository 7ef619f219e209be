package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory Store. It is the default backend in
// development and tests. A per-patient mutex serializes writes (Update and
// Delete) for one patient while leaving other patients fully parallel; there
// is no global write lock.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[uuid.UUID]*Patient),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) patientLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create stores a new patient, minting an id if absent.
func (s *MemoryStore) Create(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastUpdatedAt.IsZero() {
		p.LastUpdatedAt = now
	}
	if p.Status == "" {
		p.Status = PatientActive
	}
	p.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p.Clone()
	return nil
}

// Get returns a deep copy of the patient so callers cannot mutate stored
// state outside Update.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Update runs the mutator against a copy of the current state under the
// patient's lock and commits the copy only if the mutator succeeds.
func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn Mutator) (*Patient, error) {
	lock := s.patientLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.patients[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	s.mu.Lock()
	s.patients[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

// Delete removes the patient. It takes the same per-patient lock as Update,
// so a delete cannot land between an in-flight update's read and write-back.
// The lock entry itself is kept: another goroutine may already hold a
// reference to it, and dropping it would let a later writer mint a second
// mutex for the same id.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	lock := s.patientLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok {
		return ErrNotFound
	}
	delete(s.patients, id)
	return nil
}

// List returns patients ordered by creation time, newest first.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	s.mu.RLock()
	all := make([]*Patient, 0, len(s.patients))
	for _, p := range s.patients {
		all = append(all, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
