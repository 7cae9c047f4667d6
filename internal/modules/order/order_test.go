package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"caredispatch/internal/config"
	"caredispatch/internal/modules/matching"
	"caredispatch/internal/modules/worker"
	"caredispatch/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubMatcher struct {
	mu    sync.Mutex
	cands []matching.Candidate
	err   error
}

func (m *stubMatcher) FindCandidates(ctx context.Context, p types.Point) ([]matching.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]matching.Candidate(nil), m.cands...), nil
}

func (m *stubMatcher) ETAMinutes(distanceKm float64) int {
	return int(math.Round(15 + math.Min(distanceKm*2, 15)))
}

type stubCounter struct {
	mu    sync.Mutex
	calls []types.ID
}

func (c *stubCounter) OnOrderCompleted(ctx context.Context, workerID types.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, workerID)
	return nil
}

type fixture struct {
	store   *MemoryStore
	workers *worker.MemoryStore
	matcher *stubMatcher
	clock   *fakeClock
	counter *stubCounter
	svc     *Service
}

func newFixture(t *testing.T, policy string, cands ...matching.Candidate) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewMemoryStore(),
		workers: worker.NewMemoryStore(),
		matcher: &stubMatcher{cands: cands},
		clock:   &fakeClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		counter: &stubCounter{},
	}
	for _, c := range cands {
		w := c.Worker
		if err := f.workers.Put(context.Background(), &w); err != nil {
			t.Fatalf("seed worker: %v", err)
		}
	}
	cfg := config.MatchingConfig{
		Policy:       policy,
		FanoutSize:   3,
		AcceptWindow: 15 * time.Minute,
	}
	f.svc = NewService(f.store, f.matcher, f.workers, cfg).WithCompletionRecorder(f.counter)
	f.svc.now = f.clock.Now
	return f
}

func cand(id string, distKm, rating float64) matching.Candidate {
	return matching.Candidate{
		Worker: worker.Worker{
			ID:              types.ID(id),
			Name:            "Worker " + id,
			Phone:           "9000000" + id,
			Availability:    worker.AvailabilityAvailable,
			Active:          true,
			Approved:        true,
			ServiceRadiusKm: 10,
			Rating:          rating,
		},
		DistanceKm: distKm,
		ETAMinutes: int(math.Round(15 + math.Min(distKm*2, 15))),
	}
}

func validCreate(customer string) CreateCommand {
	return CreateCommand{
		CustomerID: types.ID(customer),
		Items: []LineItem{
			{ProductID: "svc-basic", Name: "Basic home visit", Quantity: 1, Price: 49900},
		},
		Location: ServiceLocation{
			Position: types.Point{Lat: 12.9716, Lng: 77.5946},
			Address:  "MG Road, Bengaluru",
		},
		Total:         types.Money{Amount: 49900, Currency: "INR"},
		PaymentMethod: "upi",
	}
}

func transitions(store *MemoryStore, orderID types.ID) []string {
	var out []string
	for _, e := range store.Events() {
		if e.OrderID == orderID {
			out = append(out, fmt.Sprintf("%s>%s", e.FromStatus, e.ToStatus))
		}
	}
	return out
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusSearching, StatusAssigned, true},
		{StatusSearching, StatusNotified, true},
		{StatusSearching, StatusNoCandidates, true},
		{StatusSearching, StatusCompleted, false},
		{StatusNotified, StatusAssigned, true},
		{StatusNotified, StatusTimeout, true},
		{StatusNotified, StatusInProgress, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAssigned, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusCompleted, StatusFinished, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusFinished, StatusSearching, false},
		{StatusTimeout, StatusAssigned, false},
		{StatusCancelled, StatusInProgress, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []Status{StatusFinished, StatusCancelled, StatusTimeout, StatusNoCandidates}
	for _, s := range terminal {
		if !Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
	open := []Status{StatusSearching, StatusNotified, StatusAssigned, StatusInProgress, StatusCompleted}
	for _, s := range open {
		if Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 1.0, 4.5))
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateCommand)
	}{
		{"missing customer", func(c *CreateCommand) { c.CustomerID = "" }},
		{"no items", func(c *CreateCommand) { c.Items = nil }},
		{"zero total", func(c *CreateCommand) { c.Total.Amount = 0 }},
		{"negative total", func(c *CreateCommand) { c.Total.Amount = -1 }},
		{"missing payment method", func(c *CreateCommand) { c.PaymentMethod = "" }},
		{"null island location", func(c *CreateCommand) { c.Location.Position = types.Point{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCreate("cust-1")
			tc.mutate(&cmd)
			if _, err := f.svc.Create(ctx, cmd); !errors.Is(err, ErrBadRequest) {
				t.Fatalf("Create = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestCreateDirectAssignsNearest(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 0.8, 4.2), cand("w2", 2.5, 4.9))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Status != StatusAssigned {
		t.Fatalf("status = %s, want assigned", o.Status)
	}
	if o.AssignedWorker == nil || o.AssignedWorker.WorkerID != "w1" {
		t.Fatalf("assigned worker = %+v, want w1", o.AssignedWorker)
	}
	if o.AssignedWorker.DistanceKm != 0.8 {
		t.Errorf("snapshot distance = %v, want 0.8", o.AssignedWorker.DistanceKm)
	}
	if o.AssignedWorker.ETAMinutes != 17 {
		t.Errorf("snapshot ETA = %d, want 17", o.AssignedWorker.ETAMinutes)
	}
	if o.AcceptedAt == nil {
		t.Error("AcceptedAt not set on direct assignment")
	}

	got := transitions(f.store, o.ID)
	want := []string{"none>searching", "searching>assigned"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestCreateNoCandidates(t *testing.T) {
	f := newFixture(t, "direct")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Status != StatusNoCandidates {
		t.Fatalf("status = %s, want no_candidates", o.Status)
	}
	if o.AssignedWorker != nil {
		t.Error("no_candidates order has an assigned worker")
	}
}

func TestCreateMatcherOutageResolvesOrder(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 1.0, 4.5))
	f.matcher.err = errors.New("index unavailable")
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, validCreate("cust-1")); err == nil {
		t.Fatal("Create with broken matcher succeeded")
	}

	// The persisted order must not linger in searching forever.
	orders, err := f.store.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Status != StatusNoCandidates {
		t.Fatalf("status = %s, want no_candidates", orders[0].Status)
	}
}

func TestDenyAfterResolutionRejectedByStore(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// Store-level check: even bypassing the service's status read, the
	// deny write itself refuses once the order left notified.
	_, ok, err := f.store.DenyOffer(ctx, o.ID, "w2")
	if err != nil {
		t.Fatalf("DenyOffer: %v", err)
	}
	if ok {
		t.Fatal("DenyOffer succeeded on an assigned order")
	}
	got, err := f.store.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OfferFor("w2").Response != OfferPending {
		t.Fatalf("w2 offer = %s, want pending (untouched)", got.OfferFor("w2").Response)
	}
}

func TestFanoutNotifiesTopN(t *testing.T) {
	f := newFixture(t, "fanout",
		cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5),
		cand("w3", 2.0, 3.9), cand("w4", 3.0, 4.8))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Status != StatusNotified {
		t.Fatalf("status = %s, want notified", o.Status)
	}
	if len(o.Offers) != 3 {
		t.Fatalf("offers = %d, want 3 (fanout size)", len(o.Offers))
	}
	for _, off := range o.Offers {
		if off.Response != OfferPending {
			t.Errorf("offer for %s response = %s, want pending", off.WorkerID, off.Response)
		}
	}
	if o.OfferFor("w4") != nil {
		t.Error("w4 beyond fanout size received an offer")
	}
	if o.AcceptanceDeadline == nil {
		t.Fatal("AcceptanceDeadline not set")
	}
	wantDeadline := f.clock.Now().Add(15 * time.Minute)
	if !o.AcceptanceDeadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", o.AcceptanceDeadline, wantDeadline)
	}
}

func TestAcceptFirstWins(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "w1"})
	if err != nil {
		t.Fatalf("Accept w1: %v", err)
	}
	if got.Status != StatusAssigned || got.AssignedWorker.WorkerID != "w1" {
		t.Fatalf("after accept: status=%s worker=%+v", got.Status, got.AssignedWorker)
	}
	if got.OfferFor("w1").Response != OfferAccepted {
		t.Error("winning offer not marked accepted")
	}

	if _, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "w2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("late accept = %v, want ErrConflict", err)
	}
	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("deny after assignment = %v, want ErrConflict", err)
	}

	final, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.AssignedWorker.WorkerID != "w1" {
		t.Fatalf("assignment moved to %s after losing calls", final.AssignedWorker.WorkerID)
	}
}

func TestDenyThenAccept(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Deny w1: %v", err)
	}
	got, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "w2"})
	if err != nil {
		t.Fatalf("Accept w2 after w1 denied: %v", err)
	}
	if got.AssignedWorker.WorkerID != "w2" {
		t.Fatalf("assigned = %s, want w2", got.AssignedWorker.WorkerID)
	}
	if got.OfferFor("w1").Response != OfferDenied {
		t.Error("w1 offer not recorded as denied")
	}
}

func TestAllDenyResolvesNoCandidates(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Deny w1: %v", err)
	}
	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w2"}); err != nil {
		t.Fatalf("Deny w2: %v", err)
	}

	got, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusNoCandidates {
		t.Fatalf("status = %s, want no_candidates after all denials", got.Status)
	}
	// Repeat denial must not succeed twice.
	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("repeat deny = %v, want ErrConflict", err)
	}
}

func TestAcceptWithoutOffer(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "ghost"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("accept without offer = %v, want ErrConflict", err)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	workers := []types.ID{"w1", "w2", "w3"}
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5), cand("w3", 2.0, 3.9))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []types.ID
		conflict int
	)
	start := make(chan struct{})
	for _, w := range workers {
		wg.Add(1)
		go func(w types.ID) {
			defer wg.Done()
			<-start
			_, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: w})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, w)
			case errors.Is(err, ErrConflict):
				conflict++
			default:
				t.Errorf("Accept %s: unexpected error %v", w, err)
			}
		}(w)
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	if conflict != len(workers)-1 {
		t.Fatalf("conflicts = %d, want %d", conflict, len(workers)-1)
	}
	got, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AssignedWorker.WorkerID != winners[0] {
		t.Fatalf("assigned = %s, winner = %s", got.AssignedWorker.WorkerID, winners[0])
	}
}

func TestLazyTimeoutOnRead(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.clock.Advance(16 * time.Minute)

	got, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout after deadline", got.Status)
	}

	// Second read must not record a second transition.
	if _, err := f.svc.Get(ctx, o.ID); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	count := 0
	for _, tr := range transitions(f.store, o.ID) {
		if tr == "notified>timeout" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("notified>timeout recorded %d times, want 1", count)
	}

	if _, err := f.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, WorkerID: "w1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("accept after expiry = %v, want ErrConflict", err)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0))
	ctx := context.Background()

	o1, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create o1: %v", err)
	}
	o2, err := f.svc.Create(ctx, validCreate("cust-2"))
	if err != nil {
		t.Fatalf("Create o2: %v", err)
	}
	f.clock.Advance(16 * time.Minute)
	o3, err := f.svc.Create(ctx, validCreate("cust-3"))
	if err != nil {
		t.Fatalf("Create o3: %v", err)
	}

	if n := f.svc.SweepExpired(ctx); n != 2 {
		t.Fatalf("SweepExpired = %d, want 2", n)
	}
	for _, id := range []types.ID{o1.ID, o2.ID} {
		got, err := f.store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if got.Status != StatusTimeout {
			t.Errorf("order %s status = %s, want timeout", id, got.Status)
		}
	}
	got3, err := f.store.Get(ctx, o3.ID)
	if err != nil {
		t.Fatalf("Get o3: %v", err)
	}
	if got3.Status != StatusNotified {
		t.Errorf("fresh order status = %s, want notified", got3.Status)
	}

	if n := f.svc.SweepExpired(ctx); n != 0 {
		t.Fatalf("second SweepExpired = %d, want 0", n)
	}
}

func TestAvailableForWorker(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0), cand("w2", 1.0, 4.5))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, w := range []types.ID{"w1", "w2"} {
		got, err := f.svc.AvailableForWorker(ctx, w)
		if err != nil {
			t.Fatalf("AvailableForWorker(%s): %v", w, err)
		}
		if len(got) != 1 || got[0].ID != o.ID {
			t.Fatalf("AvailableForWorker(%s) = %d orders, want the offered one", w, len(got))
		}
	}

	if err := f.svc.Deny(ctx, DenyCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	got, err := f.svc.AvailableForWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("AvailableForWorker after deny: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("denied worker still sees %d offers", len(got))
	}

	f.clock.Advance(16 * time.Minute)
	got, err = f.svc.AvailableForWorker(ctx, "w2")
	if err != nil {
		t.Fatalf("AvailableForWorker after expiry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired offer still listed, got %d", len(got))
	}
}

func TestWorkerLifecycleFlow(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 0.8, 4.2))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Start(ctx, StartCommand{OrderID: o.ID, WorkerID: "w2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("start by stranger = %v, want ErrForbidden", err)
	}
	if err := f.svc.Start(ctx, StartCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.svc.Start(ctx, StartCommand{OrderID: o.ID, WorkerID: "w1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double start = %v, want ErrInvalidState", err)
	}

	if err := f.svc.Complete(ctx, CompleteCommand{OrderID: o.ID, ActorType: "worker", ActorID: "w2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("complete by stranger = %v, want ErrForbidden", err)
	}
	if err := f.svc.Complete(ctx, CompleteCommand{OrderID: o.ID, ActorType: "worker", ActorID: "w1"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(f.counter.calls) != 1 || f.counter.calls[0] != "w1" {
		t.Fatalf("completion counter calls = %v, want [w1]", f.counter.calls)
	}

	if err := f.svc.Finish(ctx, FinishCommand{OrderID: o.ID, CustomerID: "cust-2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("finish by stranger = %v, want ErrForbidden", err)
	}
	if err := f.svc.Finish(ctx, FinishCommand{OrderID: o.ID, CustomerID: "cust-1"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFinished {
		t.Fatalf("final status = %s, want finished", got.Status)
	}
}

func TestCustomerCanCompleteInProgress(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 0.8, 4.2))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Start(ctx, StartCommand{OrderID: o.ID, WorkerID: "w1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.svc.Complete(ctx, CompleteCommand{OrderID: o.ID, ActorType: "customer", ActorID: "cust-1"}); err != nil {
		t.Fatalf("customer Complete: %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 0.8, 4.2))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Cancel(ctx, CancelCommand{OrderID: o.ID, CustomerID: "cust-2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cancel by stranger = %v, want ErrForbidden", err)
	}
	if err := f.svc.Cancel(ctx, CancelCommand{OrderID: o.ID, CustomerID: "cust-1", Reason: "changed plans"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := f.svc.Complete(ctx, CompleteCommand{OrderID: o.ID, ActorType: "worker", ActorID: "w1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("complete after cancel = %v, want ErrInvalidState", err)
	}
}

func TestActive(t *testing.T) {
	f := newFixture(t, "fanout", cand("w1", 0.5, 4.0))
	ctx := context.Background()

	if _, err := f.svc.Active(ctx, "cust-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Active with no orders = %v, want ErrNotFound", err)
	}

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.svc.Active(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if got.ID != o.ID {
		t.Fatalf("Active = %s, want %s", got.ID, o.ID)
	}

	// After expiry the order is terminal and no longer active; the read
	// itself drives the transition.
	f.clock.Advance(16 * time.Minute)
	if _, err := f.svc.Active(ctx, "cust-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Active after expiry = %v, want ErrNotFound", err)
	}
	final, err := f.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", final.Status)
	}
}

func TestListForCustomerAndWorker(t *testing.T) {
	f := newFixture(t, "direct", cand("w1", 0.8, 4.2))
	ctx := context.Background()

	first, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.clock.Advance(time.Minute)
	second, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byCustomer, err := f.svc.ListForCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("ListForCustomer: %v", err)
	}
	if len(byCustomer) != 2 || byCustomer[0].ID != second.ID || byCustomer[1].ID != first.ID {
		t.Fatalf("ListForCustomer order wrong: %d entries", len(byCustomer))
	}

	byWorker, err := f.svc.ListForWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("ListForWorker: %v", err)
	}
	if len(byWorker) != 2 {
		t.Fatalf("ListForWorker = %d, want 2", len(byWorker))
	}
}

func TestAdminUpdate(t *testing.T) {
	f := newFixture(t, "direct")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, validCreate("cust-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Status != StatusNoCandidates {
		t.Fatalf("setup: status = %s", o.Status)
	}

	if _, err := f.svc.AdminUpdate(ctx, AdminUpdateCommand{OrderID: o.ID}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty admin update = %v, want ErrBadRequest", err)
	}
	bogus := Status("teleported")
	if _, err := f.svc.AdminUpdate(ctx, AdminUpdateCommand{OrderID: o.ID, Status: &bogus}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("bogus status = %v, want ErrBadRequest", err)
	}

	// The override may leave a terminal state; the normal flow may not.
	searching := StatusSearching
	got, err := f.svc.AdminUpdate(ctx, AdminUpdateCommand{OrderID: o.ID, Status: &searching})
	if err != nil {
		t.Fatalf("AdminUpdate: %v", err)
	}
	if got.Status != StatusSearching {
		t.Fatalf("status = %s, want searching", got.Status)
	}
}
