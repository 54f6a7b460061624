package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{7}, 7},
		{Shape{2, 3}, 6},
		{Shape{2, 28, 28, 1}, 1568},
		{Shape{5, 5, 32, 64}, 51200},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), "shape %v", tt.shape)
	}
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{1, 2, 3}.Validate())
	assert.Error(t, Shape{1, 0, 3}.Validate())
	assert.Error(t, Shape{-1}.Validate())
}

func TestShapeOffset(t *testing.T) {
	s := Shape{2, 3, 4, 5}
	strides := s.ComputeStrides()
	assert.Equal(t, []int{60, 20, 5, 1}, strides)

	// Offset agrees with the stride dot product.
	for n := 0; n < 2; n++ {
		for h := 0; h < 3; h++ {
			for w := 0; w < 4; w++ {
				for c := 0; c < 5; c++ {
					want := n*strides[0] + h*strides[1] + w*strides[2] + c
					assert.Equal(t, want, s.Offset(n, h, w, c))
				}
			}
		}
	}

	assert.Panics(t, func() { s.Offset(0, 3, 0, 0) })
	assert.Panics(t, func() { s.Offset(0, 0, 0) })
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "2×24×24×32", Shape{2, 24, 24, 32}.String())
	assert.Equal(t, "[]", Shape{}.String())
}

func TestTensorAtSet(t *testing.T) {
	x := Zeros(Shape{2, 3})
	x.Set(5, 1, 2)
	assert.Equal(t, float32(5), x.At(1, 2))
	assert.Equal(t, float32(5), x.Data()[5])
	assert.Panics(t, func() { x.At(2, 0) })
}

func TestFromSlice(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	x, err := FromSlice(src, Shape{2, 2})
	require.NoError(t, err)

	src[0] = 100
	assert.Equal(t, float32(1), x.At(0, 0), "FromSlice must copy")

	_, err = FromSlice(src, Shape{3, 2})
	assert.Error(t, err)
}

func TestAllocatorAccounting(t *testing.T) {
	alloc := NewAllocator(0)

	a, err := alloc.Alloc(Shape{4, 4})
	require.NoError(t, err)
	b, err := alloc.Alloc(Shape{2, 8})
	require.NoError(t, err)

	stats := alloc.Stats()
	assert.Equal(t, int64(128), stats.LiveBytes)
	assert.Equal(t, int64(128), stats.PeakBytes)
	assert.Equal(t, int64(2), stats.Allocs)

	a.Release()
	a.Release() // idempotent
	stats = alloc.Stats()
	assert.Equal(t, int64(64), stats.LiveBytes)
	assert.Equal(t, int64(1), stats.Releases)

	b.Release()
	stats = alloc.Stats()
	assert.Equal(t, int64(0), stats.LiveBytes)
	assert.Equal(t, int64(128), stats.PeakBytes)
}

func TestAllocatorLimit(t *testing.T) {
	alloc := NewAllocator(100)

	a, err := alloc.Alloc(Shape{20}) // 80 bytes
	require.NoError(t, err)

	_, err = alloc.Alloc(Shape{10}) // 40 more bytes exceeds 100
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.Equal(t, int64(80), alloc.Stats().LiveBytes, "failed alloc must not leak accounting")

	a.Release()
	b, err := alloc.Alloc(Shape{25})
	require.NoError(t, err)
	b.Release()
}

func TestAllocatorRejectsHugeShapes(t *testing.T) {
	alloc := NewAllocator(0)

	tests := []struct {
		name  string
		shape Shape
	}{
		{"above max elements", Shape{1 << 62, 1}},
		{"product overflows int", Shape{1 << 40, 1 << 40}},
		{"product wraps to zero", Shape{1 << 32, 1 << 32, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := alloc.Alloc(tt.shape)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutOfMemory))
			assert.Zero(t, alloc.Stats().LiveBytes)
		})
	}
}

func TestShapeNumElementsWithin(t *testing.T) {
	n, ok := Shape{2, 3, 4}.NumElementsWithin(24)
	assert.True(t, ok)
	assert.Equal(t, 24, n)

	_, ok = Shape{2, 3, 4}.NumElementsWithin(23)
	assert.False(t, ok)

	_, ok = Shape{1 << 62, 4}.NumElementsWithin(MaxElements)
	assert.False(t, ok)

	_, ok = Shape{3, 0}.NumElementsWithin(MaxElements)
	assert.False(t, ok)
}

func TestAllocZeroed(t *testing.T) {
	alloc := NewAllocator(0)
	x, err := alloc.Alloc(Shape{3, 3})
	require.NoError(t, err)
	defer x.Release()

	for i, v := range x.Data() {
		assert.Zero(t, v, "element %d", i)
	}
}

func TestReshapeMovesOwnership(t *testing.T) {
	alloc := NewAllocator(0)
	x, err := alloc.Alloc(Shape{2, 4, 4, 64})
	require.NoError(t, err)
	x.Data()[7] = 3

	flat, err := x.Reshape(Shape{2, 1024})
	require.NoError(t, err)
	assert.True(t, x.Released())
	assert.Equal(t, float32(3), flat.Data()[7])

	// Releasing the moved-from tensor must not touch the accounting.
	x.Release()
	assert.Equal(t, int64(2*1024*4), alloc.Stats().LiveBytes)

	flat.Release()
	assert.Equal(t, int64(0), alloc.Stats().LiveBytes)
}

func TestReshapeMismatch(t *testing.T) {
	x := Zeros(Shape{2, 3})
	_, err := x.Reshape(Shape{4, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.False(t, x.Released(), "failed reshape keeps ownership")

	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "reshape", shapeErr.Op)
}

func TestClone(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	c, err := x.Clone()
	require.NoError(t, err)
	c.Data()[0] = 9
	assert.Equal(t, float32(1), x.Data()[0])
	assert.True(t, c.Shape().Equal(x.Shape()))
}

func TestClone_OutOfMemory(t *testing.T) {
	alloc := NewAllocator(64)
	x, err := FromSliceWith(alloc, make([]float32, 10), Shape{10})
	require.NoError(t, err)
	defer x.Release()

	_, err = x.Clone()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.Equal(t, int64(40), alloc.Stats().LiveBytes)

	x.Release()
	_, err = x.Clone()
	assert.Error(t, err)
}

func TestNearEqual(t *testing.T) {
	tol := DefaultTolerance()

	assert.True(t, NearEqual(1, 1, tol))
	assert.True(t, NearEqual(1000, 1000.05, tol))
	assert.True(t, NearEqual(0, 1e-6, tol))
	assert.False(t, NearEqual(1, 1.01, tol))

	assert.NoError(t, AllClose([]float32{1, 2}, []float32{1, 2}, tol))
	assert.Error(t, AllClose([]float32{1, 2}, []float32{1, 3}, tol))
	assert.Error(t, AllClose([]float32{1}, []float32{1, 2}, tol))
}
