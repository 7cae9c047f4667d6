package area

import (
	"context"
	"testing"

	"caredispatch/internal/types"
)

func TestResolveStatic(t *testing.T) {
	cases := []struct {
		name string
		p    types.Point
		want string
	}{
		{"koramangala center", types.Point{Lat: 12.9352, Lng: 77.6245}, "Koramangala"},
		{"indiranagar edge", types.Point{Lat: 12.9810, Lng: 77.6450}, "Indiranagar"},
		{"whitefield", types.Point{Lat: 12.9700, Lng: 77.7500}, "Whitefield"},
		{"electronic city", types.Point{Lat: 12.8458, Lng: 77.6726}, "Electronic City"},
		{"city center fallback", types.Point{Lat: 12.9716, Lng: 77.5946}, "Bangalore"},
		{"far outside", types.Point{Lat: 13.5, Lng: 78.2}, "Bangalore"},
	}
	r := NewResolver()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := r.Resolve(context.Background(), tc.p)
			if info.AreaName != tc.want {
				t.Errorf("Resolve(%v) area = %q, want %q", tc.p, info.AreaName, tc.want)
			}
			if info.City != "Bangalore" || info.State != "Karnataka" {
				t.Errorf("Resolve(%v) city/state = %q/%q", tc.p, info.City, info.State)
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	// A point near the HSR/Koramangala boundary must resolve to whichever
	// area appears first in the table, deterministically.
	p := types.Point{Lat: 12.9250, Lng: 77.6300}
	r := NewResolver()
	first := r.Resolve(context.Background(), p)
	for i := 0; i < 10; i++ {
		if got := r.Resolve(context.Background(), p); got != first {
			t.Fatalf("resolution not deterministic: %v then %v", first, got)
		}
	}
}
