// README: Resolves service coordinates to a named locality.
package area

import (
	"context"

	"googlemaps.github.io/maps"

	"caredispatch/internal/geo"
	"caredispatch/internal/types"
)

// Info is the locality attached to an order at creation time.
type Info struct {
	AreaName string `json:"area_name"`
	City     string `json:"city"`
	State    string `json:"state"`
}

type namedArea struct {
	name     string
	center   types.Point
	radiusKm float64
}

// Approximate locality centers for the launch city. Containment is by
// Haversine distance to the center, first match wins.
var bangaloreAreas = []namedArea{
	{"Whitefield", types.Point{Lat: 12.9692, Lng: 77.7498}, 5},
	{"Koramangala", types.Point{Lat: 12.9352, Lng: 77.6245}, 4},
	{"Indiranagar", types.Point{Lat: 12.9789, Lng: 77.6401}, 3},
	{"HSR Layout", types.Point{Lat: 12.9141, Lng: 77.6413}, 3},
	{"Electronic City", types.Point{Lat: 12.8458, Lng: 77.6726}, 4},
	{"Marathahalli", types.Point{Lat: 12.9587, Lng: 77.6964}, 4},
}

const (
	defaultArea  = "Bangalore"
	defaultCity  = "Bangalore"
	defaultState = "Karnataka"
)

// Resolver maps coordinates to an Info. When a Google Maps client is
// configured it reverse-geocodes first and falls back to the static table;
// without one the table is the whole story.
type Resolver struct {
	client *maps.Client
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// NewResolverWithMaps builds a resolver backed by the Geocoding API.
func NewResolverWithMaps(apiKey string) (*Resolver, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Resolver{client: client}, nil
}

func (r *Resolver) Resolve(ctx context.Context, p types.Point) Info {
	if r.client != nil {
		if info, ok := r.reverseGeocode(ctx, p); ok {
			return info
		}
	}
	return resolveStatic(p)
}

func resolveStatic(p types.Point) Info {
	for _, a := range bangaloreAreas {
		if geo.DistanceKm(p, a.center) <= a.radiusKm {
			return Info{AreaName: a.name, City: defaultCity, State: defaultState}
		}
	}
	return Info{AreaName: defaultArea, City: defaultCity, State: defaultState}
}

func (r *Resolver) reverseGeocode(ctx context.Context, p types.Point) (Info, bool) {
	results, err := r.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil || len(results) == 0 {
		return Info{}, false
	}
	info := Info{City: defaultCity, State: defaultState}
	for _, comp := range results[0].AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "sublocality_level_1", "sublocality":
				if info.AreaName == "" {
					info.AreaName = comp.LongName
				}
			case "locality":
				info.City = comp.LongName
			case "administrative_area_level_1":
				info.State = comp.LongName
			}
		}
	}
	if info.AreaName == "" {
		return Info{}, false
	}
	return info, true
}
