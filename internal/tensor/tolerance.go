package tensor

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Tolerance defines how far two float32 values may drift apart and still be
// considered equal. Accumulation order differs between the direct and the
// unrolled convolution, so results are compared within a tolerance rather
// than bit for bit.
type Tolerance struct {
	AbsTol float32 // Absolute tolerance for values near zero
	RelTol float32 // Relative tolerance as a fraction of the larger magnitude
}

// DefaultTolerance returns a tolerance suited to accumulated float32 sums.
func DefaultTolerance() Tolerance {
	return Tolerance{
		AbsTol: 1e-5,
		RelTol: 1e-4,
	}
}

// NearEqual checks if a and b are equal within tol.
func NearEqual(a, b float32, tol Tolerance) bool {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return false
	}
	if a == b {
		return true
	}

	diff := math32.Abs(a - b)
	if diff <= tol.AbsTol {
		return true
	}
	larger := math32.Max(math32.Abs(a), math32.Abs(b))
	return diff <= larger*tol.RelTol
}

// AllClose compares two slices element-wise. It returns nil when they match
// within tol, otherwise an error naming the first offending index.
func AllClose(expected, actual []float32, tol Tolerance) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("length mismatch: expected %d, got %d", len(expected), len(actual))
	}
	for i := range expected {
		if !NearEqual(expected[i], actual[i], tol) {
			return fmt.Errorf("element %d: expected %v, got %v (diff %v)",
				i, expected[i], actual[i], math32.Abs(expected[i]-actual[i]))
		}
	}
	return nil
}
