package geocrypt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

type matrix [][]float64

// deriveMatrix builds a dim×dim matrix where cell (i,j) is the hash of
// seed||i||j mapped to [0,1). The derivation is fully deterministic: the
// same seed always yields the same matrix, which is what makes two
// independent encryptions of the same coordinate land in a comparable
// vector space.
func deriveMatrix(seed string, dim int) matrix {
	m := make(matrix, dim)
	for i := range m {
		m[i] = make([]float64, dim)
		for j := range m[i] {
			m[i][j] = hashToUnit(fmt.Sprintf("%s:%d:%d", seed, i, j))
		}
	}
	return m
}

func keySeed(masterKey string) string {
	sum := sha256.Sum256([]byte(masterKey))
	return hex.EncodeToString(sum[:])
}

// hashToUnit maps a string to a float in [0,1) via the leading 8 bytes of
// its SHA-256 digest.
func hashToUnit(s string) float64 {
	sum := sha256.Sum256([]byte(s))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v>>11) / (1 << 53)
}

func (m matrix) mul(vec []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		var sum float64
		for j, c := range row {
			sum += c * vec[j]
		}
		out[i] = sum
	}
	return out
}

const pivotTolerance = 1e-12

// invert computes an approximate inverse by Gauss-Jordan elimination with
// partial pivoting. Near-singular pivot rows are skipped instead of
// raising, so for an ill-conditioned matrix the result degrades silently.
// Callers must not depend on exact inversion.
func (m matrix) invert() matrix {
	dim := len(m)
	aug := make(matrix, dim)
	for i := range aug {
		aug[i] = make([]float64, 2*dim)
		copy(aug[i], m[i])
		aug[i][dim+i] = 1
	}

	for col := 0; col < dim; col++ {
		pivot := col
		for r := col + 1; r < dim; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < pivotTolerance {
			continue
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := range aug[col] {
			aug[col][j] /= pv
		}
		for r := 0; r < dim; r++ {
			if r == col {
				continue
			}
			f := aug[r][col]
			if f == 0 {
				continue
			}
			for j := range aug[r] {
				aug[r][j] -= f * aug[col][j]
			}
		}
	}

	inv := make(matrix, dim)
	for i := range inv {
		inv[i] = make([]float64, dim)
		copy(inv[i], aug[i][dim:])
	}
	return inv
}
