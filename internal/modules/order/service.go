// README: Order service: matching on creation, guarded state transitions,
// first-accept-wins offer handling and timeout expiry.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"caredispatch/internal/config"
	"caredispatch/internal/modules/matching"
	"caredispatch/internal/modules/worker"
	"caredispatch/internal/types"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("order state conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrForbidden    = errors.New("access denied")
)

const (
	actorCustomer = "customer"
	actorWorker   = "worker"
	actorSystem   = "system"
	actorAdmin    = "admin"
)

// Matcher produces the ranked candidate set for an order location.
type Matcher interface {
	FindCandidates(ctx context.Context, p types.Point) ([]matching.Candidate, error)
	ETAMinutes(distanceKm float64) int
}

// WorkerDirectory is the slice of the worker store the order service needs
// to build assignment snapshots.
type WorkerDirectory interface {
	Get(ctx context.Context, id types.ID) (*worker.Worker, error)
}

// CompletionRecorder receives counter bumps when orders complete.
type CompletionRecorder interface {
	OnOrderCompleted(ctx context.Context, workerID types.ID) error
}

// Notifier publishes offer and assignment events. Implementations must be
// best-effort; the order flow never fails on a notification error.
type Notifier interface {
	OrderOffered(ctx context.Context, o *Order)
	OrderAssigned(ctx context.Context, o *Order)
	OrderTimedOut(ctx context.Context, o *Order)
}

type Service struct {
	store    Store
	matcher  Matcher
	workers  WorkerDirectory
	counters CompletionRecorder
	notifier Notifier
	cfg      config.MatchingConfig
	now      func() time.Time
}

func NewService(store Store, matcher Matcher, workers WorkerDirectory, cfg config.MatchingConfig) *Service {
	return &Service{
		store:   store,
		matcher: matcher,
		workers: workers,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithCompletionRecorder wires the worker counter sink.
func (s *Service) WithCompletionRecorder(c CompletionRecorder) *Service {
	s.counters = c
	return s
}

// WithNotifier wires the offer/assignment event publisher.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

type CreateCommand struct {
	CustomerID    types.ID
	Items         []LineItem
	Location      ServiceLocation
	Total         types.Money
	PaymentMethod string
	PaymentRef    string
}

type AcceptCommand struct {
	OrderID  types.ID
	WorkerID types.ID
}

type DenyCommand struct {
	OrderID  types.ID
	WorkerID types.ID
}

type StartCommand struct {
	OrderID  types.ID
	WorkerID types.ID
}

type CompleteCommand struct {
	OrderID   types.ID
	ActorType string
	ActorID   types.ID
}

type FinishCommand struct {
	OrderID    types.ID
	CustomerID types.ID
}

type CancelCommand struct {
	OrderID    types.ID
	CustomerID types.ID
	Reason     string
}

type AdminUpdateCommand struct {
	OrderID        types.ID
	Status         *Status
	AssignedWorker *WorkerSnapshot
}

// Create validates the request, runs candidate search and applies the
// configured selection policy. An empty candidate set is a business
// outcome, not an error: the caller always receives a well-formed order
// in a definite status.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || len(cmd.Items) == 0 || cmd.PaymentMethod == "" {
		return nil, ErrBadRequest
	}
	if cmd.Total.Amount <= 0 {
		return nil, ErrBadRequest
	}
	if cmd.Location.Position.Lat == 0 && cmd.Location.Position.Lng == 0 {
		return nil, ErrBadRequest
	}

	now := s.now()
	o := &Order{
		ID:            types.ID(uuid.NewString()),
		CustomerID:    cmd.CustomerID,
		Items:         cmd.Items,
		Location:      cmd.Location,
		Total:         cmd.Total,
		PaymentMethod: cmd.PaymentMethod,
		PaymentRef:    cmd.PaymentRef,
		Status:        StatusSearching,
		StatusVersion: 0,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, o.ID, StatusNone, StatusSearching, actorCustomer, &cmd.CustomerID)

	candidates, err := s.matcher.FindCandidates(ctx, o.Location.Position)
	if err != nil {
		// A matching outage must not strand the persisted order in
		// searching, where nothing would ever re-drive it.
		if ok, casErr := s.store.UpdateStatus(ctx, o.ID, StatusSearching, StatusNoCandidates, o.StatusVersion); casErr == nil && ok {
			s.appendEvent(ctx, o.ID, StatusSearching, StatusNoCandidates, actorSystem, nil)
		}
		return nil, err
	}

	if len(candidates) == 0 {
		if ok, err := s.store.UpdateStatus(ctx, o.ID, StatusSearching, StatusNoCandidates, o.StatusVersion); err != nil {
			return nil, err
		} else if ok {
			s.appendEvent(ctx, o.ID, StatusSearching, StatusNoCandidates, actorSystem, nil)
		}
		return s.store.Get(ctx, o.ID)
	}

	if matching.Policy(s.cfg.Policy) == matching.PolicyFanout {
		return s.fanOut(ctx, o, candidates, now)
	}
	return s.assignDirect(ctx, o, candidates[0], now)
}

func (s *Service) assignDirect(ctx context.Context, o *Order, best matching.Candidate, now time.Time) (*Order, error) {
	snap := snapshotFromCandidate(best, now)
	ok, err := s.store.Assign(ctx, o.ID, StatusSearching, o.StatusVersion, snap, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, o.ID, StatusSearching, StatusAssigned, actorSystem, nil)

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OrderAssigned(ctx, updated)
	}
	return updated, nil
}

func (s *Service) fanOut(ctx context.Context, o *Order, candidates []matching.Candidate, now time.Time) (*Order, error) {
	n := s.cfg.FanoutSize
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}
	offers := make([]Offer, n)
	for i, c := range candidates[:n] {
		offers[i] = Offer{
			WorkerID:   c.Worker.ID,
			DistanceKm: c.DistanceKm,
			NotifiedAt: now,
			Response:   OfferPending,
		}
	}
	deadline := now.Add(s.cfg.AcceptWindow)
	ok, err := s.store.AddOffers(ctx, o.ID, o.StatusVersion, offers, deadline)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, o.ID, StatusSearching, StatusNotified, actorSystem, nil)

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OrderOffered(ctx, updated)
	}
	return updated, nil
}

// Get returns the order, lazily applying the timeout check first so a
// caller never sees an expired order still reading as notified.
func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyTimeout(ctx, o)
}

// Accept is the first-accept-wins path: a single atomic check-and-set
// flips the pending offer to accepted and the order to assigned. Losing
// callers get ErrConflict, never a silent overwrite.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusNotified {
		return nil, ErrConflict
	}
	off := o.OfferFor(cmd.WorkerID)
	if off == nil || off.Response != OfferPending {
		return nil, ErrConflict
	}

	w, err := s.workers.Get(ctx, cmd.WorkerID)
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.now()
	snap := snapshotFromWorker(w, off.DistanceKm, s.matcher.ETAMinutes(off.DistanceKm), now)
	ok, err := s.store.AcceptOffer(ctx, o.ID, cmd.WorkerID, o.StatusVersion, snap, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, o.ID, StatusNotified, StatusAssigned, actorWorker, &cmd.WorkerID)

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OrderAssigned(ctx, updated)
	}
	return updated, nil
}

// Deny marks the worker's offer denied. When the last pending offer is
// denied and nobody accepted, the order resolves to no_candidates.
func (s *Service) Deny(ctx context.Context, cmd DenyCommand) error {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.Status != StatusNotified {
		return ErrConflict
	}
	pending, ok, err := s.store.DenyOffer(ctx, o.ID, cmd.WorkerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if pending == 0 {
		// Status still notified implies no offer was accepted; the CAS
		// quietly loses to any concurrent accept.
		if ok, err := s.store.UpdateStatus(ctx, o.ID, StatusNotified, StatusNoCandidates, o.StatusVersion); err != nil {
			return err
		} else if ok {
			s.appendEvent(ctx, o.ID, StatusNotified, StatusNoCandidates, actorSystem, nil)
		}
	}
	return nil
}

// Start moves an assigned order to in_progress; only the assigned worker
// may start it.
func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusInProgress) {
		return ErrInvalidState
	}
	if o.AssignedWorker == nil || o.AssignedWorker.WorkerID != cmd.WorkerID {
		return ErrForbidden
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusInProgress, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusInProgress, actorWorker, &cmd.WorkerID)
	return nil
}

// Complete may be driven by the assigned worker or the ordering customer.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return ErrInvalidState
	}
	switch cmd.ActorType {
	case actorWorker:
		if o.AssignedWorker == nil || o.AssignedWorker.WorkerID != cmd.ActorID {
			return ErrForbidden
		}
	case actorCustomer:
		if o.CustomerID != cmd.ActorID {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusCompleted, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusCompleted, cmd.ActorType, &cmd.ActorID)
	if s.counters != nil && o.AssignedWorker != nil {
		_ = s.counters.OnOrderCompleted(ctx, o.AssignedWorker.WorkerID)
	}
	return nil
}

// Finish closes a completed order; customer only.
func (s *Service) Finish(ctx context.Context, cmd FinishCommand) error {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.CustomerID != cmd.CustomerID {
		return ErrForbidden
	}
	if !CanTransition(o.Status, StatusFinished) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusFinished, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusFinished, actorCustomer, &cmd.CustomerID)
	return nil
}

// Cancel abandons an assigned or in-progress order; customer only.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	o, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.CustomerID != cmd.CustomerID {
		return ErrForbidden
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusCancelled, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusCancelled, actorCustomer, &cmd.CustomerID)
	return nil
}

// AdminUpdate force-sets status and/or the assigned worker, bypassing the
// transition guard. Deliberate escape hatch for support tooling.
func (s *Service) AdminUpdate(ctx context.Context, cmd AdminUpdateCommand) (*Order, error) {
	if cmd.Status == nil && cmd.AssignedWorker == nil {
		return nil, ErrBadRequest
	}
	if cmd.Status != nil && !ValidStatus(*cmd.Status) {
		return nil, ErrBadRequest
	}
	before, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.AdminUpdate(ctx, cmd.OrderID, cmd.Status, cmd.AssignedWorker)
	if err != nil {
		return nil, err
	}
	if cmd.Status != nil && *cmd.Status != before.Status {
		s.appendEvent(ctx, cmd.OrderID, before.Status, *cmd.Status, actorAdmin, nil)
	}
	return updated, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID types.ID) ([]*Order, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

func (s *Service) ListForWorker(ctx context.Context, workerID types.ID) ([]*Order, error) {
	return s.store.ListByWorker(ctx, workerID)
}

// Active returns the customer's most recent order still in flight.
func (s *Service) Active(ctx context.Context, customerID types.ID) (*Order, error) {
	o, err := s.store.ActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	o, err = s.applyTimeout(ctx, o)
	if err != nil {
		return nil, err
	}
	if Terminal(o.Status) {
		return nil, ErrNotFound
	}
	return o, nil
}

// AvailableForWorker lists orders holding a still-pending offer for the
// worker with an unexpired acceptance deadline.
func (s *Service) AvailableForWorker(ctx context.Context, workerID types.ID) ([]*Order, error) {
	return s.store.ListOpenOffers(ctx, workerID, s.now())
}

// applyTimeout transitions an expired notified order to timeout through
// the same CAS every other mutation uses, so expiry happens exactly once
// no matter how many readers and sweepers race.
func (s *Service) applyTimeout(ctx context.Context, o *Order) (*Order, error) {
	if !o.Expired(s.now()) {
		return o, nil
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, StatusNotified, StatusTimeout, o.StatusVersion)
	if err != nil {
		return nil, err
	}
	if ok {
		s.appendEvent(ctx, o.ID, StatusNotified, StatusTimeout, actorSystem, nil)
	}
	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if ok && s.notifier != nil {
		s.notifier.OrderTimedOut(ctx, updated)
	}
	return updated, nil
}

// RunTimeoutSweeper proactively expires notified orders whose deadline has
// passed. The lazy read-time check alone is correct but not punctual; the
// sweeper shares its CAS so double processing is impossible.
func (s *Service) RunTimeoutSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}

// SweepExpired runs one sweep pass and returns how many orders it expired.
func (s *Service) SweepExpired(ctx context.Context) int {
	expired, err := s.store.ListExpiredNotified(ctx, s.now(), 100)
	if err != nil {
		return 0
	}
	n := 0
	for _, o := range expired {
		ok, err := s.store.UpdateStatus(ctx, o.ID, StatusNotified, StatusTimeout, o.StatusVersion)
		if err != nil || !ok {
			continue
		}
		n++
		s.appendEvent(ctx, o.ID, StatusNotified, StatusTimeout, actorSystem, nil)
		if s.notifier != nil {
			if updated, err := s.store.Get(ctx, o.ID); err == nil {
				s.notifier.OrderTimedOut(ctx, updated)
			}
		}
	}
	return n
}

func (s *Service) appendEvent(ctx context.Context, orderID types.ID, from, to Status, actorType string, actorID *types.ID) {
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
}

func snapshotFromCandidate(c matching.Candidate, now time.Time) WorkerSnapshot {
	return snapshotFromWorker(&c.Worker, c.DistanceKm, c.ETAMinutes, now)
}

func snapshotFromWorker(w *worker.Worker, distanceKm float64, etaMinutes int, now time.Time) WorkerSnapshot {
	return WorkerSnapshot{
		WorkerID:         w.ID,
		Name:             w.Name,
		Phone:            w.Phone,
		Specializations:  append([]string(nil), w.Specializations...),
		Rating:           w.Rating,
		TotalOrders:      w.TotalOrders,
		CompletedOrders:  w.CompletedOrders,
		DistanceKm:       distanceKm,
		ETAMinutes:       etaMinutes,
		EstimatedArrival: now.Add(time.Duration(etaMinutes) * time.Minute),
		AssignedAt:       now,
	}
}
