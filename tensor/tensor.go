// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types of the lenet module.
//
// Tensors are contiguous float32 buffers in row-major order, with the last
// index varying fastest. Activations are N×H×W×C and filters K×K×C×M.
// Every buffer comes from an Allocator, which can be given a byte limit:
//
//	alloc := tensor.NewAllocator(64 << 20)
//	x, err := tensor.FromSliceWith(alloc, pixels, tensor.Shape{n, 28, 28, 1})
//	if err != nil {
//	    return err // wraps tensor.ErrOutOfMemory past the limit
//	}
//	defer x.Release()
package tensor

import (
	"github.com/born-ml/lenet/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 24, 24, 32} is a batch of two 24×24 maps with 32 channels.
type Shape = tensor.Shape

// Tensor is an exclusively owned float32 buffer paired with its shape.
type Tensor = tensor.Tensor

// Allocator hands out tensor buffers and enforces an optional byte limit.
type Allocator = tensor.Allocator

// AllocatorStats is a snapshot of an allocator's accounting.
type AllocatorStats = tensor.AllocatorStats

// ShapeError describes an operand whose shape disagrees with what an
// operation expects. It unwraps to ErrShapeMismatch.
type ShapeError = tensor.ShapeError

// Errors reported by tensor operations.
var (
	ErrShapeMismatch = tensor.ErrShapeMismatch
	ErrOutOfMemory   = tensor.ErrOutOfMemory
)

// MaxElements is the largest element count of a single tensor.
const MaxElements = tensor.MaxElements

// NewAllocator creates an allocator holding at most limitBytes of live
// tensor data. limitBytes <= 0 disables the limit.
func NewAllocator(limitBytes int64) *Allocator {
	return tensor.NewAllocator(limitBytes)
}

// Zeros creates a zero-filled tensor from the unlimited default allocator.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// FromSliceWith is FromSlice drawing the buffer from alloc.
func FromSliceWith(alloc *Allocator, data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSliceWith(alloc, data, shape)
}
