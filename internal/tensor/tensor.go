package tensor

import "fmt"

// Tensor is an exclusively owned, contiguous float32 buffer paired with its
// shape. Elements are addressed row-major with the last index varying
// fastest.
//
// Invariant: len(Data()) == Shape().NumElements() until the tensor is
// released or moved by Reshape.
type Tensor struct {
	data  []float32
	shape Shape
	alloc *Allocator
	size  int64 // Bytes accounted against alloc
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Data returns the tensor's backing slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
//
// Example:
//
//	t := tensor.Zeros(tensor.Shape{3, 4})
//	value := t.At(1, 2) // Row 1, column 2
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.shape.Offset(indices...)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.shape.Offset(indices...)] = value
}

// Released reports whether the tensor no longer owns a buffer.
func (t *Tensor) Released() bool {
	return t.data == nil
}

// Release returns the buffer to its allocator. Safe to call more than once
// and on a nil tensor.
func (t *Tensor) Release() {
	if t == nil || t.data == nil {
		return
	}
	if t.alloc != nil {
		t.alloc.release(t.size)
	}
	t.data = nil
	t.size = 0
}

// Reshape moves the buffer into a tensor of a new shape with the same
// number of elements. No data is copied; t is left empty and releasing it
// is a no-op.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: invalid shape: %w", err)
	}
	if t.data == nil {
		return nil, fmt.Errorf("reshape: tensor %v already released", t.shape)
	}
	if shape.NumElements() != t.NumElements() {
		return nil, &ShapeError{
			Op:   "reshape",
			Want: fmt.Sprintf("%d elements", t.NumElements()),
			Got:  shape,
		}
	}

	moved := &Tensor{
		data:  t.data,
		shape: shape.Clone(),
		alloc: t.alloc,
		size:  t.size,
	}
	t.data = nil
	t.size = 0
	return moved, nil
}

// Clone creates a deep copy of the tensor drawn from the same allocator.
// Returns an error wrapping ErrOutOfMemory if the allocator refuses the copy.
func (t *Tensor) Clone() (*Tensor, error) {
	if t.data == nil {
		return nil, fmt.Errorf("clone: tensor %v already released", t.shape)
	}
	alloc := t.alloc
	if alloc == nil {
		alloc = defaultAllocator
	}
	c, err := alloc.Alloc(t.shape)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	copy(c.data, t.data)
	return c, nil
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float32]%v", t.shape)
}
