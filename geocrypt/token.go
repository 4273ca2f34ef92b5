package geocrypt

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/paulmach/orb"

	"github.com/veilgeo/veilgeo/geomodel"
)

const (
	// TokenTTL bounds the useful life of a query token.
	TokenTTL = 5 * time.Minute

	earthCircumferenceKm = 40075.0
	kmPerLatDegree       = 111.32
)

// QueryToken is the encrypted representation of one search request. It is
// request-scoped: generated, evaluated and discarded, never persisted.
// Expiry is carried on the token but deliberately not checked on the
// evaluation path, matching the permissive behavior of deployed data.
type QueryToken struct {
	Vector     []float64                `json:"vector"`
	Bounds     geomodel.EncryptedBounds `json:"bounds"`
	RadiusNorm float64                  `json:"radius_norm"`
	CreatedAt  time.Time                `json:"created_at"`
	ExpiresAt  time.Time                `json:"expires_at"`
}

// Expired reports whether the token is past its TTL. Informational only.
func (qt QueryToken) Expired(now time.Time) bool {
	return now.After(qt.ExpiresAt)
}

func kmToLatDegrees(km float64) float64 {
	return km / kmPerLatDegree
}

func kmToLngDegrees(km, lat float64) float64 {
	return km / (kmPerLatDegree * math.Cos(lat*math.Pi/180))
}

// GenerateToken builds the encrypted query vector and the encrypted
// bounding box for a search centred at (lat, lng) with the given radius.
// Radius validity is the caller boundary's concern.
//
// The 6-d query vector is encrypted with the separately seeded query
// matrix, so it is not naively comparable to point vectors; only its
// leading components participate in predicate evaluation. The bounding
// box corners go through the point transform so the result can be matched
// directly against the index.
func (t *Transform) GenerateToken(lat, lng, radiusKm float64) QueryToken {
	now := time.Now()
	radiusNorm := radiusKm / earthCircumferenceKm

	vec := []float64{
		normalizeLat(lat),
		normalizeLng(lng),
		radiusNorm,
		radiusNorm * radiusNorm,
		1,
		float64(now.UnixNano()%1000) / 1000 * rand.Float64(),
	}

	dLat := kmToLatDegrees(radiusKm)
	dLng := kmToLngDegrees(radiusKm, lat)
	plain := orb.Bound{
		Min: orb.Point{lng - dLng, lat - dLat},
		Max: orb.Point{lng + dLng, lat + dLat},
	}

	return QueryToken{
		Vector: t.queryMatrix.mul(vec),
		Bounds: geomodel.EncryptedBounds{
			Min: t.EncryptPoint(plain.Min.Y(), plain.Min.X()),
			Max: t.EncryptPoint(plain.Max.Y(), plain.Max.X()),
		},
		RadiusNorm: radiusNorm,
		CreatedAt:  now,
		ExpiresAt:  now.Add(TokenTTL),
	}
}
