package geocrypt

import (
	"math/rand/v2"

	"github.com/veilgeo/veilgeo/geomodel"
)

const (
	// PointDim is the dimension of an encrypted location vector.
	PointDim = geomodel.PointDim
	// QueryDim is the dimension of an encrypted query vector.
	QueryDim = 6

	noiseMagnitude = 0.001

	querySeedSuffix = ":query"
)

// Transform is the keyed coordinate transform shared by stored points and
// query tokens. The point and query matrices are derived deterministically
// from the master key, so every Transform built from the same key maps
// coordinates identically.
//
// Inputs are assumed pre-validated (latitude in [-90,90], longitude in
// [-180,180]) by the boundary feeding this package; no range checks are
// repeated here.
type Transform struct {
	pointMatrix  matrix
	pointInverse matrix
	queryMatrix  matrix
}

func NewTransform(masterKey string) *Transform {
	seed := keySeed(masterKey)
	pm := deriveMatrix(seed, PointDim)
	return &Transform{
		pointMatrix:  pm,
		pointInverse: pm.invert(),
		queryMatrix:  deriveMatrix(seed+querySeedSuffix, QueryDim),
	}
}

func normalizeLat(lat float64) float64 { return (lat + 90) / 180 }
func normalizeLng(lng float64) float64 { return (lng + 180) / 360 }

// EncryptPoint maps a coordinate pair to its 4-d transformed vector. The
// last input component is fresh random padding and a small uniform noise
// term is added to every output coordinate, so two encryptions of the
// same point are never bit-identical. Downstream comparison goes through
// thresholding, never equality.
func (t *Transform) EncryptPoint(lat, lng float64) geomodel.EncryptedPoint {
	vec := []float64{normalizeLat(lat), normalizeLng(lng), 1, rand.Float64()}
	out := t.pointMatrix.mul(vec)
	for i := range out {
		out[i] += rand.Float64() * noiseMagnitude
	}
	return out
}

// RecoverPoint applies the approximate inverse to a transformed vector.
// It is kept for coordinate recovery and is not on the search path; with
// a degraded inverse the result is only approximate.
func (t *Transform) RecoverPoint(p geomodel.EncryptedPoint) (lat, lng float64) {
	vec := make([]float64, PointDim)
	copy(vec, p)
	rec := t.pointInverse.mul(vec)
	return rec[0]*180 - 90, rec[1]*360 - 180
}
