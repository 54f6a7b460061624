package cpu

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/born-ml/lenet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConv2D_BasicForward checks both algorithms against a hand-computed
// 3×3 image convolved with a diagonal 2×2 filter.
func TestConv2D_BasicForward(t *testing.T) {
	backend := newTestBackend(2, 2)

	// 1 2 3
	// 4 5 6
	// 7 8 9
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 3, 3, 1})
	// 1 0
	// 0 1
	w := fromSlice(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2, 1, 1})

	direct, err := backend.ConvDirect(x, w)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, direct.Shape())
	assert.Equal(t, []float32{6, 8, 12, 14}, direct.Data())

	unrolled, err := backend.ConvUnrolled(x, w, false)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 12, 14}, unrolled.Data())
}

// TestConv2D_ChannelLastOutput uses two input and two output channels to
// pin down the interleaving of the channel-last layouts.
func TestConv2D_ChannelLastOutput(t *testing.T) {
	backend := newTestBackend(4, 2)

	// 2×2 image, channel 0 = 1..4, channel 1 = 10..40.
	x := fromSlice(t, []float32{1, 10, 2, 20, 3, 30, 4, 40}, tensor.Shape{1, 2, 2, 2})
	// 1×1 filter: m0 = c0 + c1, m1 = c0 - c1.
	w := fromSlice(t, []float32{1, 1, 1, -1}, tensor.Shape{1, 1, 2, 2})

	want := []float32{11, -9, 22, -18, 33, -27, 44, -36}

	direct, err := backend.ConvDirect(x, w)
	require.NoError(t, err)
	assert.Equal(t, want, direct.Data())

	unrolled, err := backend.ConvUnrolled(x, w, false)
	require.NoError(t, err)
	assert.Equal(t, want, unrolled.Data())
}

func TestConvUnrolled_MatchesDirect(t *testing.T) {
	tests := []struct {
		n, h, w, c, k, m int
		tile, group      int
	}{
		{n: 2, h: 9, w: 9, c: 3, k: 3, m: 5, tile: 4, group: 2},
		{n: 2, h: 9, w: 9, c: 3, k: 3, m: 5, tile: 16, group: 16},
		{n: 1, h: 12, w: 7, c: 2, k: 5, m: 7, tile: 3, group: 1},
		{n: 3, h: 28, w: 28, c: 1, k: 5, m: 8, tile: 16, group: 4}, // conv1 sized
		{n: 1, h: 5, w: 5, c: 4, k: 5, m: 3, tile: 8, group: 8},    // filter covers whole input
	}

	for _, tt := range tests {
		name := fmt.Sprintf("N%d_%dx%dx%d_K%d_M%d_T%d_G%d", tt.n, tt.h, tt.w, tt.c, tt.k, tt.m, tt.tile, tt.group)
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(tt.h*100 + tt.c*10 + tt.m)))
			backend := newTestBackend(tt.tile, tt.group)

			x := randTensor(t, rng, tensor.Shape{tt.n, tt.h, tt.w, tt.c})
			w := randTensor(t, rng, tensor.Shape{tt.k, tt.k, tt.c, tt.m})

			direct, err := backend.ConvDirect(x, w)
			require.NoError(t, err)
			unrolled, err := backend.ConvUnrolled(x, w, false)
			require.NoError(t, err)

			assert.Equal(t, tensor.Shape{tt.n, tt.h - tt.k + 1, tt.w - tt.k + 1, tt.m}, unrolled.Shape())
			requireClose(t, direct, unrolled)
		})
	}
}

func TestConvUnrolled_FusedReLU(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	backend := newTestBackend(4, 4)

	x := randTensor(t, rng, tensor.Shape{2, 8, 8, 3})
	w := randTensor(t, rng, tensor.Shape{3, 3, 3, 4})

	direct, err := backend.ConvDirect(x, w)
	require.NoError(t, err)
	fused, err := backend.ConvUnrolled(x, w, true)
	require.NoError(t, err)

	requireClose(t, backend.ReLU(direct), fused)
	for i, v := range fused.Data() {
		require.GreaterOrEqual(t, v, float32(0), "element %d", i)
	}
}

func TestConv2D_ShapeErrors(t *testing.T) {
	backend := newTestBackend(4, 1)

	tests := []struct {
		name string
		x, w tensor.Shape
	}{
		{name: "channel mismatch", x: tensor.Shape{1, 6, 6, 3}, w: tensor.Shape{3, 3, 2, 4}},
		{name: "filter taller than input", x: tensor.Shape{1, 4, 6, 1}, w: tensor.Shape{5, 5, 1, 1}},
		{name: "filter wider than input", x: tensor.Shape{1, 6, 4, 1}, w: tensor.Shape{5, 5, 1, 1}},
		{name: "input rank", x: tensor.Shape{6, 6, 1}, w: tensor.Shape{3, 3, 1, 1}},
		{name: "filter rank", x: tensor.Shape{1, 6, 6, 1}, w: tensor.Shape{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, w := tensor.Zeros(tt.x), tensor.Zeros(tt.w)

			_, err := backend.ConvDirect(x, w)
			assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "direct: %v", err)

			_, err = backend.ConvUnrolled(x, w, false)
			assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "unrolled: %v", err)
		})
	}

	assert.Zero(t, backend.Allocator().Stats().LiveBytes)
}

// TestConvUnrolled_ReleasesTransientBuffers checks that only the output
// stays live once the call returns.
func TestConvUnrolled_ReleasesTransientBuffers(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	backend := newTestBackend(8, 2)

	x := randTensor(t, rng, tensor.Shape{2, 10, 10, 2})
	w := randTensor(t, rng, tensor.Shape{3, 3, 2, 4})

	y, err := backend.ConvUnrolled(x, w, false)
	require.NoError(t, err)

	stats := backend.Allocator().Stats()
	assert.Equal(t, int64(y.NumElements()*4), stats.LiveBytes)
	assert.Greater(t, stats.PeakBytes, stats.LiveBytes)

	y.Release()
	assert.Zero(t, backend.Allocator().Stats().LiveBytes)
}

func TestConvUnrolled_OutOfMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	x := randTensor(t, rng, tensor.Shape{1, 10, 10, 2})
	w := randTensor(t, rng, tensor.Shape{3, 3, 2, 4})

	// Room for the unrolled filter only.
	alloc := tensor.NewAllocator(4 * 3 * 3 * 2 * 4)
	backend := New(Options{Allocator: alloc, TileWidth: 4, GroupSize: 2})

	_, err := backend.ConvUnrolled(x, w, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tensor.ErrOutOfMemory))
	assert.Zero(t, alloc.Stats().LiveBytes)

	_, err = backend.ConvDirect(x, w)
	assert.True(t, errors.Is(err, tensor.ErrOutOfMemory))
}

func BenchmarkConv2D(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	mk := func(shape tensor.Shape) *tensor.Tensor {
		data := make([]float32, shape.NumElements())
		for i := range data {
			data[i] = rng.Float32()
		}
		x, _ := tensor.FromSlice(data, shape)
		return x
	}

	x := mk(tensor.Shape{8, 12, 12, 32})
	w := mk(tensor.Shape{5, 5, 32, 64})
	backend := newTestBackend(16, 4)

	b.Run("direct", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			y, _ := backend.ConvDirect(x, w)
			y.Release()
		}
	})
	b.Run("unrolled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			y, _ := backend.ConvUnrolled(x, w, false)
			y.Release()
		}
	})
}
