// README: In-memory order store; the arena used by tests and dev runs.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"caredispatch/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []Event
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[types.ID]*Order)}
}

func (s *MemoryStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	return true, nil
}

func (s *MemoryStore) Assign(ctx context.Context, id types.ID, from Status, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = StatusAssigned
	o.StatusVersion++
	o.AssignedWorker = cloneSnapshot(&snap)
	t := acceptedAt
	o.AcceptedAt = &t
	return true, nil
}

func (s *MemoryStore) AddOffers(ctx context.Context, id types.ID, version int, offers []Offer, deadline time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != StatusSearching || o.StatusVersion != version {
		return false, nil
	}
	o.Status = StatusNotified
	o.StatusVersion++
	o.Offers = append([]Offer(nil), offers...)
	d := deadline
	o.AcceptanceDeadline = &d
	return true, nil
}

func (s *MemoryStore) AcceptOffer(ctx context.Context, id, workerID types.ID, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != StatusNotified || o.StatusVersion != version {
		return false, nil
	}
	off := o.OfferFor(workerID)
	if off == nil || off.Response != OfferPending {
		return false, nil
	}
	off.Response = OfferAccepted
	o.Status = StatusAssigned
	o.StatusVersion++
	o.AssignedWorker = cloneSnapshot(&snap)
	t := acceptedAt
	o.AcceptedAt = &t
	return true, nil
}

func (s *MemoryStore) DenyOffer(ctx context.Context, id, workerID types.ID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	// A resolved order takes no further denials; the losing caller gets
	// a conflict, not silent success.
	if o.Status != StatusNotified {
		return 0, false, nil
	}
	off := o.OfferFor(workerID)
	if off == nil || off.Response != OfferPending {
		return 0, false, nil
	}
	off.Response = OfferDenied
	pending := 0
	for _, e := range o.Offers {
		if e.Response == OfferPending {
			pending++
		}
	}
	return pending, true, nil
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID types.ID) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListByWorker(ctx context.Context, workerID types.ID) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.AssignedWorker != nil && o.AssignedWorker.WorkerID == workerID {
			out = append(out, cloneOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ActiveByCustomer(ctx context.Context, customerID types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Order
	for _, o := range s.orders {
		if o.CustomerID != customerID || Terminal(o.Status) || o.Status == StatusCompleted {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneOrder(latest), nil
}

func (s *MemoryStore) ListOpenOffers(ctx context.Context, workerID types.ID, now time.Time) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Status != StatusNotified {
			continue
		}
		if o.AcceptanceDeadline != nil && !now.Before(*o.AcceptanceDeadline) {
			continue
		}
		off := o.OfferFor(workerID)
		if off == nil || off.Response != OfferPending {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Expired(now) {
			out = append(out, cloneOrder(o))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) AdminUpdate(ctx context.Context, id types.ID, status *Status, snap *WorkerSnapshot) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if status != nil {
		o.Status = *status
		o.StatusVersion++
	}
	if snap != nil {
		o.AssignedWorker = cloneSnapshot(snap)
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	s.events = append(s.events, cp)
	return nil
}

// Events returns a copy of the recorded state events (test helper).
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func sortNewestFirst(orders []*Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	cp.Offers = append([]Offer(nil), o.Offers...)
	cp.AssignedWorker = cloneSnapshot(o.AssignedWorker)
	if o.AcceptanceDeadline != nil {
		t := *o.AcceptanceDeadline
		cp.AcceptanceDeadline = &t
	}
	if o.AcceptedAt != nil {
		t := *o.AcceptedAt
		cp.AcceptedAt = &t
	}
	return &cp
}

func cloneSnapshot(s *WorkerSnapshot) *WorkerSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Specializations = append([]string(nil), s.Specializations...)
	return &cp
}
