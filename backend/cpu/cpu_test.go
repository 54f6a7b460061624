// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu_test

import (
	"errors"
	"testing"

	"github.com/born-ml/lenet/backend/cpu"
	"github.com/born-ml/lenet/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	backend := cpu.New()
	assert.Equal(t, "CPU", backend.Name())
	assert.GreaterOrEqual(t, backend.TileWidth(), 1)
	assert.LessOrEqual(t, backend.GroupSize(), backend.TileWidth())
}

// TestConvolutionAlgorithmsAgree runs both convolutions through the public
// backend type.
func TestConvolutionAlgorithmsAgree(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 3, 3, 1})
	require.NoError(t, err)
	w, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2, 1, 1})
	require.NoError(t, err)

	direct, err := backend.ConvDirect(x, w)
	require.NoError(t, err)
	unrolled, err := backend.ConvUnrolled(x, w, false)
	require.NoError(t, err)

	assert.Equal(t, []float32{6, 8, 12, 14}, direct.Data())
	assert.Equal(t, direct.Data(), unrolled.Data())
}

func TestNewWithOptions_AllocatorLimit(t *testing.T) {
	opts := cpu.DefaultOptions()
	opts.Allocator = tensor.NewAllocator(16)
	backend := cpu.NewWithOptions(opts)

	x := tensor.Zeros(tensor.Shape{1, 4, 4, 2})
	_, err := backend.AvgPool2D(x, 2, cpu.PoolTruncate)
	assert.True(t, errors.Is(err, tensor.ErrOutOfMemory), "got %v", err)
	assert.Zero(t, backend.Allocator().Stats().LiveBytes)
}
