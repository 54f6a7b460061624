package loader

import (
	"fmt"

	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/tensor"
)

// Tensor names of a test-data file.
const (
	TensorImages = "x"
	TensorLabels = "y"
)

// Metadata "format" values written by SaveWeights and SaveTestData.
const (
	FormatModel    = "lenet-model"
	FormatTestData = "lenet-testdata"
)

// Dataset is a batch of images and their one-hot reference labels.
type Dataset struct {
	X *tensor.Tensor // [N, H, W, C]
	Y *tensor.Tensor // [N, digits]
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return d.X.Shape()[0]
}

// Release returns both buffers to their allocator.
func (d *Dataset) Release() {
	d.X.Release()
	d.Y.Release()
}

// LoadWeights reads conv1, conv2, fc1 and fc2 from a SafeTensors model file
// and checks them against cfg. A tensor of the wrong shape yields an error
// wrapping tensor.ErrShapeMismatch.
func LoadWeights(path string, cfg *nn.Config) (*nn.Weights, error) {
	return LoadWeightsWith(tensor.NewAllocator(0), path, cfg)
}

// LoadWeightsWith is LoadWeights drawing the weight buffers from alloc.
// Tensors already read are released again if a later step fails.
func LoadWeightsWith(alloc *tensor.Allocator, path string, cfg *nn.Config) (*nn.Weights, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	defer func() { _ = r.Close() }()

	if err := r.VerifyChecksum(); err != nil {
		return nil, fmt.Errorf("load weights: %s: %w", path, err)
	}

	loaded := make(map[string]*tensor.Tensor, len(nn.WeightNames))
	ok := false
	defer func() {
		if !ok {
			for _, t := range loaded {
				t.Release()
			}
		}
	}()

	for _, name := range nn.WeightNames {
		t, err := r.LoadTensor(name, alloc)
		if err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
		loaded[name] = t
	}

	weights, err := nn.WeightsFromMap(loaded)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	if err := weights.Validate(cfg); err != nil {
		return nil, fmt.Errorf("load weights: %s: %w", path, err)
	}
	ok = true
	return weights, nil
}

// SaveWeights writes w as a SafeTensors model file.
func SaveWeights(path string, w *nn.Weights) error {
	if err := WriteSafeTensors(path, w.ByName(), map[string]string{"format": FormatModel}); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// LoadTestData reads images x [N, H, W, C] and one-hot labels y [N, digits]
// from a SafeTensors file.
//
// If batchSize > 0 and the file holds a different number of samples, the
// load fails with ErrBatchSizeMismatch before any tensor data is read.
func LoadTestData(path string, cfg *nn.Config, batchSize int) (*Dataset, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, fmt.Errorf("load test data: %w", err)
	}
	defer func() { _ = r.Close() }()

	xInfo, err := r.TensorInfo(TensorImages)
	if err != nil {
		return nil, fmt.Errorf("load test data: %w", err)
	}
	yInfo, err := r.TensorInfo(TensorLabels)
	if err != nil {
		return nil, fmt.Errorf("load test data: %w", err)
	}

	if err := checkDatasetShapes(cfg, xInfo.Shape, yInfo.Shape, batchSize); err != nil {
		return nil, fmt.Errorf("load test data: %s: %w", path, err)
	}

	if err := r.VerifyChecksum(); err != nil {
		return nil, fmt.Errorf("load test data: %s: %w", path, err)
	}

	alloc := tensor.NewAllocator(0)
	x, err := r.LoadTensor(TensorImages, alloc)
	if err != nil {
		return nil, fmt.Errorf("load test data: %w", err)
	}
	y, err := r.LoadTensor(TensorLabels, alloc)
	if err != nil {
		x.Release()
		return nil, fmt.Errorf("load test data: %w", err)
	}

	return &Dataset{X: x, Y: y}, nil
}

// SaveTestData writes d as a SafeTensors test-data file.
func SaveTestData(path string, d *Dataset) error {
	tensors := map[string]*tensor.Tensor{TensorImages: d.X, TensorLabels: d.Y}
	if err := WriteSafeTensors(path, tensors, map[string]string{"format": FormatTestData}); err != nil {
		return fmt.Errorf("save test data: %w", err)
	}
	return nil
}

// checkDatasetShapes matches image and label shapes against cfg and the
// expected batch size.
func checkDatasetShapes(cfg *nn.Config, x, y tensor.Shape, batchSize int) error {
	if len(x) != 4 || x[1] != cfg.InputHeight || x[2] != cfg.InputWidth || x[3] != cfg.InputChannels {
		return &tensor.ShapeError{
			Op:      "test data",
			Operand: TensorImages,
			Want:    fmt.Sprintf("N×%d×%d×%d", cfg.InputHeight, cfg.InputWidth, cfg.InputChannels),
			Got:     x,
		}
	}
	n := x[0]
	if len(y) != 2 || y[0] != n || y[1] != cfg.NumDigits {
		return &tensor.ShapeError{
			Op:      "test data",
			Operand: TensorLabels,
			Want:    fmt.Sprintf("%d×%d", n, cfg.NumDigits),
			Got:     y,
		}
	}
	if batchSize > 0 && n != batchSize {
		return fmt.Errorf("%w: file holds %d samples, want %d", ErrBatchSizeMismatch, n, batchSize)
	}
	return nil
}
