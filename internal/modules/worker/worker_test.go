// README: Worker service tests against the in-memory store.
package worker

import (
	"context"
	"testing"

	"caredispatch/internal/types"
)

// fakeGeo records index mutations so tests can assert on them.
type fakeGeo struct {
	added   map[types.ID]types.Point
	removed map[types.ID]bool
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{added: make(map[types.ID]types.Point), removed: make(map[types.ID]bool)}
}

func (f *fakeGeo) Add(_ context.Context, id types.ID, p types.Point) error {
	f.added[id] = p
	delete(f.removed, id)
	return nil
}

func (f *fakeGeo) Remove(_ context.Context, id types.ID) error {
	f.removed[id] = true
	delete(f.added, id)
	return nil
}

func testWorker(id types.ID) *Worker {
	return &Worker{
		ID:              id,
		Name:            "Asha",
		Phone:           "+919900000001",
		Availability:    AvailabilityAvailable,
		Active:          true,
		Approved:        true,
		ServiceRadiusKm: 5,
		Rating:          4.8,
		Location:        types.Point{Lat: 12.9716, Lng: 77.5946},
	}
}

func TestRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	geo := newFakeGeo()
	svc := NewService(NewMemoryStore(), geo)

	if err := svc.Register(ctx, testWorker("w1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	w, err := svc.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Name != "Asha" || !w.Eligible() {
		t.Fatalf("unexpected worker: %+v", w)
	}
	if _, ok := geo.added["w1"]; !ok {
		t.Fatal("expected available worker to be added to the geo index")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)

	if err := svc.Register(ctx, &Worker{Phone: "+91123"}); err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest for missing id, got %v", err)
	}
	w := testWorker("w_bad")
	w.Availability = Availability("sleeping")
	if err := svc.Register(ctx, w); err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest for bad availability, got %v", err)
	}
}

func TestUpdateLocation_KeepsIndexCurrent(t *testing.T) {
	ctx := context.Background()
	geo := newFakeGeo()
	svc := NewService(NewMemoryStore(), geo)

	if err := svc.Register(ctx, testWorker("w1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	next := types.Point{Lat: 12.9352, Lng: 77.6245}
	if err := svc.UpdateLocation(ctx, LocationUpdate{WorkerID: "w1", Position: next, Address: "Koramangala"}); err != nil {
		t.Fatalf("update location: %v", err)
	}

	w, err := svc.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Location != next || w.Address != "Koramangala" {
		t.Fatalf("location not persisted: %+v", w)
	}
	if geo.added["w1"] != next {
		t.Fatalf("geo index not refreshed: %+v", geo.added["w1"])
	}
}

func TestUpdateLocation_UnknownWorker(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	err := svc.UpdateLocation(context.Background(), LocationUpdate{WorkerID: "ghost"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAvailability(t *testing.T) {
	ctx := context.Background()
	geo := newFakeGeo()
	svc := NewService(NewMemoryStore(), geo)

	if err := svc.Register(ctx, testWorker("w1")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.UpdateAvailability(ctx, "w1", AvailabilityOffline); err != nil {
		t.Fatalf("go offline: %v", err)
	}
	if !geo.removed["w1"] {
		t.Fatal("expected offline worker to be removed from the geo index")
	}
	w, _ := svc.Get(ctx, "w1")
	if w.Eligible() {
		t.Fatal("offline worker must not be eligible")
	}

	if err := svc.UpdateAvailability(ctx, "w1", AvailabilityAvailable); err != nil {
		t.Fatalf("back available: %v", err)
	}
	if _, ok := geo.added["w1"]; !ok {
		t.Fatal("expected worker re-added to the geo index")
	}

	if err := svc.UpdateAvailability(ctx, "w1", Availability("napping")); err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestOnOrderCompleted_Counters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)
	if err := svc.Register(ctx, testWorker("w1")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.OnOrderCompleted(ctx, "w1"); err != nil {
		t.Fatalf("on completed: %v", err)
	}
	if err := svc.OnOrderCompleted(ctx, "w1"); err != nil {
		t.Fatalf("on completed: %v", err)
	}

	w, _ := svc.Get(ctx, "w1")
	if w.CompletedOrders != 2 || w.TotalOrders != 2 {
		t.Fatalf("expected counters 2/2, got %d/%d", w.CompletedOrders, w.TotalOrders)
	}
}

func TestMemoryStore_GetManyPreservesOrderAndSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []types.ID{"a", "b", "c"} {
		if err := store.Put(ctx, testWorker(id)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, err := store.GetMany(ctx, []types.ID{"c", "ghost", "a"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
