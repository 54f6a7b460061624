package tensor

import (
	"fmt"
	"math"
	"sync/atomic"
)

// float32Size is the byte size of one tensor element.
const float32Size = 4

// MaxElements bounds a single tensor so its byte size fits in int64 and
// below the runtime's largest allocation.
const MaxElements = min(1<<44, math.MaxInt/float32Size)

// Allocator hands out zero-initialised tensor buffers and keeps byte
// accounting for them. A limit of zero means unlimited.
//
// Every tensor obtained from Alloc must be released exactly once; Release is
// idempotent, so the usual pattern is
//
//	t, err := alloc.Alloc(shape)
//	if err != nil {
//	    return err
//	}
//	defer t.Release()
type Allocator struct {
	limit int64

	live     atomic.Int64
	peak     atomic.Int64
	allocs   atomic.Int64
	releases atomic.Int64
}

// AllocatorStats is a snapshot of an allocator's accounting.
type AllocatorStats struct {
	LimitBytes int64
	LiveBytes  int64
	PeakBytes  int64
	Allocs     int64
	Releases   int64
}

// NewAllocator creates an allocator that refuses to hold more than
// limitBytes of live tensor data. limitBytes <= 0 disables the limit.
func NewAllocator(limitBytes int64) *Allocator {
	if limitBytes < 0 {
		limitBytes = 0
	}
	return &Allocator{limit: limitBytes}
}

// defaultAllocator backs Zeros and FromSlice.
var defaultAllocator = NewAllocator(0)

// Alloc returns a zero-initialised tensor of the given shape.
// Returns an error wrapping ErrOutOfMemory if the allocation would exceed
// the limit.
func (a *Allocator) Alloc(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	n, ok := shape.NumElementsWithin(MaxElements)
	if !ok {
		return nil, fmt.Errorf("alloc %v: %w: more than %d elements", shape, ErrOutOfMemory, int64(MaxElements))
	}
	size := int64(n) * float32Size
	if err := a.reserve(size); err != nil {
		return nil, fmt.Errorf("alloc %v: %w", shape, err)
	}

	return &Tensor{
		data:   make([]float32, n),
		shape: shape.Clone(),
		alloc: a,
		size:  size,
	}, nil
}

// reserve accounts size bytes against the limit.
func (a *Allocator) reserve(size int64) error {
	for {
		live := a.live.Load()
		next := live + size
		if a.limit > 0 && next > a.limit {
			return fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrOutOfMemory, size, live, a.limit)
		}
		if a.live.CompareAndSwap(live, next) {
			a.allocs.Add(1)
			for {
				peak := a.peak.Load()
				if next <= peak || a.peak.CompareAndSwap(peak, next) {
					return nil
				}
			}
		}
	}
}

// release returns size bytes to the allocator.
func (a *Allocator) release(size int64) {
	a.live.Add(-size)
	a.releases.Add(1)
}

// Stats returns a snapshot of the allocator's accounting.
func (a *Allocator) Stats() AllocatorStats {
	return AllocatorStats{
		LimitBytes: a.limit,
		LiveBytes:  a.live.Load(),
		PeakBytes:  a.peak.Load(),
		Allocs:     a.allocs.Load(),
		Releases:   a.releases.Load(),
	}
}

// Zeros creates a zero-filled tensor from the unlimited default allocator.
// Panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	t, err := defaultAllocator.Alloc(shape)
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return t
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return FromSliceWith(defaultAllocator, data, shape)
}

// FromSliceWith is FromSlice drawing the buffer from alloc.
func FromSliceWith(alloc *Allocator, data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	t, err := alloc.Alloc(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}
