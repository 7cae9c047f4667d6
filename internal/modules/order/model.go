// README: Order aggregate, offer entries, worker snapshot and status definitions.
package order

import (
	"time"

	"caredispatch/internal/types"
)

type Status string

const (
	StatusNone         Status = "none"
	StatusSearching    Status = "searching"
	StatusNotified     Status = "notified"
	StatusAssigned     Status = "assigned"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusFinished     Status = "finished"
	StatusCancelled    Status = "cancelled"
	StatusTimeout      Status = "timeout"
	StatusNoCandidates Status = "no_candidates"
)

// AllowedTransitions represents the order state flow (diagram) as code.
// finished, cancelled, timeout and no_candidates are terminal for
// customer-facing flows; only the admin override may leave them.
var AllowedTransitions = map[Status][]Status{
	StatusSearching:  {StatusAssigned, StatusNotified, StatusNoCandidates},
	StatusNotified:   {StatusAssigned, StatusTimeout, StatusNoCandidates},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusFinished},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the customer-facing lifecycle.
func Terminal(s Status) bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusTimeout, StatusNoCandidates:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusSearching, StatusNotified, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusFinished, StatusCancelled, StatusTimeout,
		StatusNoCandidates:
		return true
	}
	return false
}

type OfferResponse string

const (
	OfferPending  OfferResponse = "pending"
	OfferDenied   OfferResponse = "denied"
	OfferAccepted OfferResponse = "accepted"
)

// Offer records that a worker was notified about an order.
type Offer struct {
	WorkerID   types.ID      `json:"worker_id"`
	DistanceKm float64       `json:"distance_km"`
	NotifiedAt time.Time     `json:"notified_at"`
	Response   OfferResponse `json:"response"`
}

type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// ServiceLocation is where the service is delivered.
type ServiceLocation struct {
	Position types.Point `json:"position"`
	Address  string      `json:"address"`
}

// WorkerSnapshot is a denormalized copy of the worker captured at
// assignment time, so later profile edits never alter the order's record.
type WorkerSnapshot struct {
	WorkerID         types.ID  `json:"worker_id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Specializations  []string  `json:"specializations"`
	Rating           float64   `json:"rating"`
	TotalOrders      int       `json:"total_orders"`
	CompletedOrders  int       `json:"completed_orders"`
	DistanceKm       float64   `json:"distance_km"`
	ETAMinutes       int       `json:"eta_minutes"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	AssignedAt       time.Time `json:"assigned_at"`
}

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	Items         []LineItem
	Location      ServiceLocation
	Total         types.Money
	PaymentMethod string
	// PaymentRef is the external payment gateway's order id, stored opaque.
	PaymentRef    string
	Status        Status
	StatusVersion int
	// AssignedWorker is set exactly once, when an offer is accepted or the
	// direct policy assigns the nearest candidate.
	AssignedWorker     *WorkerSnapshot
	Offers             []Offer
	AcceptanceDeadline *time.Time
	AcceptedAt         *time.Time
	CreatedAt          time.Time
}

// OfferFor returns the offer entry for the given worker, or nil.
func (o *Order) OfferFor(workerID types.ID) *Offer {
	for i := range o.Offers {
		if o.Offers[i].WorkerID == workerID {
			return &o.Offers[i]
		}
	}
	return nil
}

// Expired reports whether a notified order's acceptance deadline has passed.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusNotified && o.AcceptanceDeadline != nil && now.After(*o.AcceptanceDeadline)
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}
