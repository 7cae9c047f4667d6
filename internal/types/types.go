// README: Common identifier and coordinate types shared across modules.
package types

// ID is an opaque record identifier (UUID string).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
