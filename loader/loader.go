// Package loader provides model and test-data loading for the lenet network.
//
// Models and test data are SafeTensors files. Test images can also be read
// from the MNIST IDX pair, gzip-compressed or not.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/lenet/loader"
//	    "github.com/born-ml/lenet/nn"
//	)
//
//	cfg := nn.DefaultConfig()
//	weights, err := loader.LoadWeights("model.safetensors", cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer weights.Release()
//
//	data, err := loader.LoadTestData("testdata.safetensors", cfg, 10000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer data.Release()
package loader

import (
	"github.com/born-ml/lenet/internal/loader"
	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/tensor"
)

// Dataset is a batch of images [N, H, W, C] and one-hot labels [N, digits].
type Dataset = loader.Dataset

// ValidationError describes a malformed file. It unwraps to one of the
// errors below.
type ValidationError = loader.ValidationError

// Errors reported while loading.
var (
	ErrBatchSizeMismatch = loader.ErrBatchSizeMismatch
	ErrChecksumMismatch  = loader.ErrChecksumMismatch
	ErrOffsetOverlap     = loader.ErrOffsetOverlap
	ErrOutOfBounds       = loader.ErrOutOfBounds
	ErrInvalidTensorName = loader.ErrInvalidTensorName
	ErrHeaderTooLarge    = loader.ErrHeaderTooLarge
	ErrUnsupportedDType  = loader.ErrUnsupportedDType
	ErrInvalidMagic      = loader.ErrInvalidMagic
)

// LoadWeights reads conv1, conv2, fc1 and fc2 from a SafeTensors model file
// and checks them against cfg.
func LoadWeights(path string, cfg *nn.Config) (*nn.Weights, error) {
	return loader.LoadWeights(path, cfg)
}

// LoadWeightsWith is LoadWeights drawing the weight buffers from alloc.
func LoadWeightsWith(alloc *tensor.Allocator, path string, cfg *nn.Config) (*nn.Weights, error) {
	return loader.LoadWeightsWith(alloc, path, cfg)
}

// SaveWeights writes w as a SafeTensors model file.
func SaveWeights(path string, w *nn.Weights) error {
	return loader.SaveWeights(path, w)
}

// LoadTestData reads images x and labels y from a SafeTensors file. A
// batchSize > 0 must equal the number of samples in the file.
func LoadTestData(path string, cfg *nn.Config, batchSize int) (*Dataset, error) {
	return loader.LoadTestData(path, cfg, batchSize)
}

// SaveTestData writes d as a SafeTensors test-data file.
func SaveTestData(path string, d *Dataset) error {
	return loader.SaveTestData(path, d)
}

// LoadIDX reads an MNIST IDX image and label file pair.
func LoadIDX(imagesPath, labelsPath string, cfg *nn.Config, batchSize int) (*Dataset, error) {
	return loader.LoadIDX(imagesPath, labelsPath, cfg, batchSize)
}
