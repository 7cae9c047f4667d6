// README: Candidate search results and selection policies.
package matching

import (
	"caredispatch/internal/modules/worker"
)

// Policy selects how a freshly created order is matched.
type Policy string

const (
	// PolicyDirect assigns the single nearest candidate immediately.
	PolicyDirect Policy = "direct"
	// PolicyFanout offers the order to the top N candidates and lets the
	// first acceptance win.
	PolicyFanout Policy = "fanout"
)

// Candidate is a worker that passed the availability, approval and radius
// filters for a given order location.
type Candidate struct {
	Worker     worker.Worker
	DistanceKm float64
	ETAMinutes int
}
