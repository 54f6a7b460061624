package loader

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/synthetic"
	"github.com/born-ml/lenet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_RoundTrip(t *testing.T) {
	cfg := nn.DefaultConfig()
	want, err := synthetic.Weights(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, SaveWeights(path, want))

	got, err := LoadWeights(path, cfg)
	require.NoError(t, err)
	for name, w := range want.ByName() {
		g := got.ByName()[name]
		assert.Equal(t, w.Shape(), g.Shape(), name)
		assert.Equal(t, w.Data(), g.Data(), name)
	}
}

func TestLoadWeights_ShapeMismatch(t *testing.T) {
	cfg := nn.DefaultConfig()
	w, err := synthetic.Weights(cfg)
	require.NoError(t, err)
	w.FC1 = tensor.Zeros(tensor.Shape{1000, 128})

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, SaveWeights(path, w))

	_, err = LoadWeights(path, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
	assert.Contains(t, err.Error(), "fc1")
}

func TestLoadWeights_MissingTensor(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{5, 5, 1, 32})
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Tensor{nn.WeightConv1: x}, nil))

	alloc := tensor.NewAllocator(0)
	_, err := LoadWeightsWith(alloc, path, nn.DefaultConfig())
	assert.Error(t, err)

	stats := alloc.Stats()
	assert.Equal(t, int64(1), stats.Allocs, "conv1 is read before conv2 is found missing")
	assert.Zero(t, stats.LiveBytes)
	assert.Equal(t, stats.Allocs, stats.Releases)
}

func TestLoadWeightsWith_ReleasesOnShapeMismatch(t *testing.T) {
	cfg := nn.DefaultConfig()
	w, err := synthetic.Weights(cfg)
	require.NoError(t, err)
	w.FC2 = tensor.Zeros(tensor.Shape{128, 11})

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, SaveWeights(path, w))

	alloc := tensor.NewAllocator(0)
	_, err = LoadWeightsWith(alloc, path, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))

	stats := alloc.Stats()
	assert.Equal(t, int64(4), stats.Allocs)
	assert.Zero(t, stats.LiveBytes)
	assert.Equal(t, stats.Allocs, stats.Releases)
}

func TestLoadWeightsWith_Release(t *testing.T) {
	cfg := nn.DefaultConfig()
	w, err := synthetic.Weights(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, SaveWeights(path, w))

	alloc := tensor.NewAllocator(0)
	got, err := LoadWeightsWith(alloc, path, cfg)
	require.NoError(t, err)
	assert.Positive(t, alloc.Stats().LiveBytes)

	got.Release()
	assert.Zero(t, alloc.Stats().LiveBytes)
}

func TestLoadWeights_HugeShapeIsRejected(t *testing.T) {
	path := writeRawSafeTensors(t, map[string]any{
		nn.WeightConv1: SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{1 << 62, 1}, DataOffsets: [2]int64{0, 0}},
	}, nil)

	var w *nn.Weights
	var err error
	require.NotPanics(t, func() { w, err = LoadWeights(path, nn.DefaultConfig()) })
	assert.Nil(t, w)
	assert.True(t, errors.Is(err, ErrOutOfBounds), "got %v", err)
}

func TestLoadWeights_MissingFile(t *testing.T) {
	_, err := LoadWeights(filepath.Join(t.TempDir(), "nope.safetensors"), nn.DefaultConfig())
	assert.Error(t, err)
}

func writeTestData(t *testing.T, cfg *nn.Config, n int) (string, []int32) {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(n)))
	labels := synthetic.Labels(rng, n, cfg.NumDigits)
	x, y, err := synthetic.Dataset(cfg, rng, labels)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "testdata.safetensors")
	require.NoError(t, SaveTestData(path, &Dataset{X: x, Y: y}))
	return path, labels
}

func TestTestData_RoundTrip(t *testing.T) {
	cfg := nn.DefaultConfig()
	path, labels := writeTestData(t, cfg, 5)

	d, err := LoadTestData(path, cfg, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Len())
	assert.Equal(t, tensor.Shape{5, 28, 28, 1}, d.X.Shape())
	assert.Equal(t, tensor.Shape{5, 10}, d.Y.Shape())
	for i, l := range labels {
		assert.Equal(t, float32(1), d.Y.At(i, int(l)))
	}

	// Zero accepts any batch.
	d, err = LoadTestData(path, cfg, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Len())

	d.Release()
	assert.True(t, d.X.Released())
}

func TestLoadTestData_BatchSizeMismatch(t *testing.T) {
	cfg := nn.DefaultConfig()
	path, _ := writeTestData(t, cfg, 3)

	_, err := LoadTestData(path, cfg, 10000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchSizeMismatch))
	assert.Contains(t, err.Error(), "holds 3 samples, want 10000")
}

func TestLoadTestData_ShapeMismatch(t *testing.T) {
	cfg := nn.DefaultConfig()
	dir := t.TempDir()

	tests := []struct {
		name string
		x, y tensor.Shape
	}{
		{"image size", tensor.Shape{2, 32, 32, 1}, tensor.Shape{2, 10}},
		{"label count", tensor.Shape{2, 28, 28, 1}, tensor.Shape{3, 10}},
		{"label width", tensor.Shape{2, 28, 28, 1}, tensor.Shape{2, 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".safetensors")
			require.NoError(t, SaveTestData(path, &Dataset{X: tensor.Zeros(tt.x), Y: tensor.Zeros(tt.y)}))

			_, err := LoadTestData(path, cfg, 0)
			assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "got %v", err)
		})
	}
}

// TestLoadedDataset_Classifies runs the network on files written and read
// back, the way the command line does.
func TestLoadedDataset_Classifies(t *testing.T) {
	cfg := nn.DefaultConfig()
	dir := t.TempDir()

	w, err := synthetic.Weights(cfg)
	require.NoError(t, err)
	modelPath := filepath.Join(dir, "model.safetensors")
	require.NoError(t, SaveWeights(modelPath, w))
	dataPath, labels := writeTestData(t, cfg, 12)

	weights, err := LoadWeights(modelPath, cfg)
	require.NoError(t, err)
	data, err := LoadTestData(dataPath, cfg, 12)
	require.NoError(t, err)

	predicted, err := nn.Forward(data.X, weights)
	require.NoError(t, err)
	assert.Equal(t, labels, predicted)
}
