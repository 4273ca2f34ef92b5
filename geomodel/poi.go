package geomodel

import (
	"github.com/paulmach/orb"
)

// PointDim is the length of an encrypted location vector.
const PointDim = 4

// EncryptedPoint is a location passed through the keyed coordinate
// transform. It is produced once at ingestion and never edited in place.
type EncryptedPoint []float64

// Box is an axis-aligned rectangle in transformed-coordinate space.
// For a stored point min == max.
type Box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Intersects reports whether two boxes overlap, boundaries included.
func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// Contains reports whether o lies fully inside b.
func (b Box) Contains(o Box) bool {
	return b.MinX <= o.MinX && b.MaxX >= o.MaxX &&
		b.MinY <= o.MinY && b.MaxY >= o.MaxY
}

// Extend grows b to cover o.
func (b Box) Extend(o Box) Box {
	if o.MinX < b.MinX {
		b.MinX = o.MinX
	}
	if o.MinY < b.MinY {
		b.MinY = o.MinY
	}
	if o.MaxX > b.MaxX {
		b.MaxX = o.MaxX
	}
	if o.MaxY > b.MaxY {
		b.MaxY = o.MaxY
	}
	return b
}

// Area of the box, zero for degenerate point boxes.
func (b Box) Area() float64 {
	return (b.MaxX - b.MinX) * (b.MaxY - b.MinY)
}

// PointBox returns the degenerate box of an encrypted point, built from
// its first two vector components.
func PointBox(p EncryptedPoint) Box {
	var x, y float64
	if len(p) > 0 {
		x = p[0]
	}
	if len(p) > 1 {
		y = p[1]
	}
	return Box{MinX: x, MinY: y, MaxX: x, MaxY: y}
}

// EncryptedBounds is a search region in transformed space, carried as the
// two encrypted corner vectors of the plaintext query rectangle. Min/Max
// ordering is not guaranteed after encryption, consumers must normalize.
type EncryptedBounds struct {
	Min EncryptedPoint `json:"min"`
	Max EncryptedPoint `json:"max"`
}

// Box projects the corner vectors onto a normalized 2-d search box.
func (eb EncryptedBounds) Box() Box {
	lo := PointBox(eb.Min)
	hi := PointBox(eb.Max)
	b := Box{
		MinX: min(lo.MinX, hi.MinX),
		MinY: min(lo.MinY, hi.MinY),
		MaxX: max(lo.MaxX, hi.MaxX),
		MaxY: max(lo.MaxY, hi.MaxY),
	}
	return b
}

// POIRecord is a point of interest as the server stores it: location only
// in transformed space, free-text fields as opaque ciphertext. Category
// stays plaintext, it is only used for a caller-side post-filter.
type POIRecord struct {
	ID       string         `json:"id"`
	Location EncryptedPoint `json:"location"`
	Bounds   Box            `json:"bounds"`
	Category string         `json:"category"`

	EncName        []byte `json:"enc_name,omitempty"`
	EncAddress     []byte `json:"enc_address,omitempty"`
	EncDescription []byte `json:"enc_description,omitempty"`
}

// PlainPOI is a point of interest before ingestion, or after the
// plaintext resolver collaborator has restored it. Point follows the orb
// convention: X is longitude, Y is latitude.
type PlainPOI struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Point       orb.Point `json:"point"`
}

func (p PlainPOI) Lat() float64 { return p.Point.Y() }
func (p PlainPOI) Lng() float64 { return p.Point.X() }

// ResolvedPOI is a query match after ranking, with the true great-circle
// distance from the query center. DistanceKm is 0 when the plaintext
// originals were unavailable.
type ResolvedPOI struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
	DistanceKm  float64 `json:"distance_km"`
}
