// README: Worker service: profile reads, location and availability updates.
package worker

import (
	"context"

	"caredispatch/internal/types"
)

// GeoIndex is the slice of the spatial index the worker service needs to
// keep live locations current.
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	store Store
	geo   GeoIndex
}

func NewService(store Store, geo GeoIndex) *Service {
	return &Service{store: store, geo: geo}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Worker, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Register(ctx context.Context, w *Worker) error {
	if w.ID == "" || w.Phone == "" {
		return ErrBadRequest
	}
	if w.Availability == "" {
		w.Availability = AvailabilityOffline
	}
	if !ValidAvailability(w.Availability) {
		return ErrBadRequest
	}
	if err := s.store.Put(ctx, w); err != nil {
		return err
	}
	if s.geo != nil && w.Availability != AvailabilityOffline {
		return s.geo.Add(ctx, w.ID, w.Location)
	}
	return nil
}

type LocationUpdate struct {
	WorkerID types.ID
	Position types.Point
	Address  string
}

func (s *Service) UpdateLocation(ctx context.Context, u LocationUpdate) error {
	if u.WorkerID == "" {
		return ErrBadRequest
	}
	if err := s.store.UpdateLocation(ctx, u.WorkerID, u.Position, u.Address); err != nil {
		return err
	}
	if s.geo != nil {
		return s.geo.Add(ctx, u.WorkerID, u.Position)
	}
	return nil
}

func (s *Service) UpdateAvailability(ctx context.Context, id types.ID, a Availability) error {
	if id == "" || !ValidAvailability(a) {
		return ErrBadRequest
	}
	if err := s.store.UpdateAvailability(ctx, id, a); err != nil {
		return err
	}
	if s.geo == nil {
		return nil
	}
	// Offline workers drop out of the spatial index; everyone else stays in
	// and is re-filtered by eligibility at match time.
	if a == AvailabilityOffline {
		return s.geo.Remove(ctx, id)
	}
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.geo.Add(ctx, id, w.Location)
}

// OnOrderCompleted bumps the worker's order counters. Called by the order
// service when an order reaches a completed state.
func (s *Service) OnOrderCompleted(ctx context.Context, id types.ID) error {
	return s.store.IncrementCompleted(ctx, id)
}
