package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
//
// Activations and filters use 4-D shapes (batch, height, width, channel);
// flattened activations and weight matrices use 2-D shapes (rows, cols).
// The last dimension varies fastest in memory.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// NumElementsWithin is NumElements for untrusted shapes: ok is false when
// the product overflows int or exceeds limit.
func (s Shape) NumElementsWithin(limit int) (n int, ok bool) {
	n = 1
	for _, dim := range s {
		if dim <= 0 || n > limit/dim {
			return 0, false
		}
		n *= dim
	}
	return n, n <= limit
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Offset returns the row-major buffer offset of the element at indices:
//
//	((i0*e1 + i1)*e2 + i2)*... + in
//
// Panics if the index count or any index is out of range.
func (s Shape) Offset(indices ...int) int {
	if len(indices) != len(s) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(s), len(indices)))
	}

	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= s[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, s[i]))
		}
		offset = offset*s[i] + idx
	}
	return offset
}

// String formats the shape as N×H×W×C.
func (s Shape) String() string {
	if len(s) == 0 {
		return "[]"
	}
	out := ""
	for i, dim := range s {
		if i > 0 {
			out += "×"
		}
		out += fmt.Sprint(dim)
	}
	return out
}
