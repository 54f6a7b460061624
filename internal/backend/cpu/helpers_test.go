package cpu

import (
	"math/rand"
	"testing"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
	"github.com/stretchr/testify/require"
)

// testTolerance absorbs float32 accumulation-order differences in sums of
// a few hundred terms.
var testTolerance = tensor.Tolerance{AbsTol: 1e-4, RelTol: 1e-4}

// newTestBackend returns a parallel backend with a private allocator.
func newTestBackend(tile, group int) *CPUBackend {
	return New(Options{
		Allocator: tensor.NewAllocator(0),
		Parallel:  parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
		TileWidth: tile,
		GroupSize: group,
	})
}

// randTensor fills a tensor of the given shape with values in [-1, 1).
func randTensor(t *testing.T, rng *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

// fromSlice builds a tensor or fails the test.
func fromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

// requireClose fails the test if the tensors differ beyond testTolerance.
func requireClose(t *testing.T, expected, actual *tensor.Tensor) {
	t.Helper()
	require.True(t, expected.Shape().Equal(actual.Shape()), "shape: expected %v, got %v", expected.Shape(), actual.Shape())
	require.NoError(t, tensor.AllClose(expected.Data(), actual.Data(), testTolerance))
}
