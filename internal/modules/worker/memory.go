// README: In-memory worker store for tests and single-node dev runs.
package worker

import (
	"context"
	"sync"
	"time"

	"caredispatch/internal/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	workers map[types.ID]*Worker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workers: make(map[types.ID]*Worker)}
}

func (s *MemoryStore) Put(ctx context.Context, w *Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneWorker(w)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.workers[cp.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorker(w), nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []types.ID) ([]*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Worker, 0, len(ids))
	for _, id := range ids {
		if w, ok := s.workers[id]; ok {
			out = append(out, cloneWorker(w))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	w.Location = p
	if address != "" {
		w.Address = address
	}
	w.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateAvailability(ctx context.Context, id types.ID, a Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	w.Availability = a
	w.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrementCompleted(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	w.TotalOrders++
	w.CompletedOrders++
	w.UpdatedAt = time.Now()
	return nil
}

func cloneWorker(w *Worker) *Worker {
	cp := *w
	cp.Specializations = append([]string(nil), w.Specializations...)
	return &cp
}
