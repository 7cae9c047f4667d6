// README: Worker profile, availability states and candidate eligibility.
package worker

import (
	"time"

	"caredispatch/internal/types"
)

type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

func ValidAvailability(a Availability) bool {
	switch a {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return true
	}
	return false
}

type Worker struct {
	ID              types.ID
	Name            string
	Phone           string
	Specializations []string
	Availability    Availability
	Active          bool
	Approved        bool
	ServiceRadiusKm float64
	Rating          float64
	TotalOrders     int
	CompletedOrders int
	Location        types.Point
	Address         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Eligible reports whether the worker may be offered new orders. Evaluated
// at match time; never enforced continuously.
func (w *Worker) Eligible() bool {
	return w.Availability == AvailabilityAvailable && w.Active && w.Approved
}
