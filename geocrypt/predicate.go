package geocrypt

import (
	"github.com/veilgeo/veilgeo/geomodel"
)

const thresholdFactor = 0.5

// Evaluate decides candidate membership from transformed values alone:
// the inner product of the candidate vector with the leading components
// of the token vector, compared against a radius-derived threshold.
//
// The formula is an inherited compatibility contract. It must stay
// exactly as is, stored datasets were produced against it.
func Evaluate(candidate geomodel.EncryptedPoint, token QueryToken) bool {
	score := innerProduct(candidate, token.Vector)
	threshold := token.RadiusNorm * token.RadiusNorm * thresholdFactor
	return score <= threshold
}

// innerProduct multiply-sums component-wise over the leading PointDim
// components, truncating to the shorter vector on length mismatch.
func innerProduct(a geomodel.EncryptedPoint, b []float64) float64 {
	n := PointDim
	if len(a) < n {
		n = len(a)
	}
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
