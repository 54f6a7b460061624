// Package synthetic generates a digit-block dataset together with a
// hand-set weight set that classifies it exactly.
//
// Digit d is drawn as a bright square "block" at position d of the coarse
// grid that the two conv/pool pairs reduce an image to. The weights make
// every conv stage a channel mean of its top-left tap and make fc1 read one
// channel of each grid cell, so the fc2 score for digit d is the mean
// brightness of block d. This is NOT realistic MNIST data; it exercises the
// whole pipeline with a known answer.
package synthetic

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/tensor"
)

// Background is the exclusive upper bound of background pixel noise.
const Background = 0.25

// Grid returns the rows and columns of the block grid, i.e. the pool2
// spatial extent, and the block side in input pixels.
func Grid(cfg *nn.Config) (rows, cols, side int, err error) {
	shapes, err := nn.ComputeShapes(cfg, 1)
	if err != nil {
		return 0, 0, 0, err
	}
	rows, cols = shapes.Pool2[1], shapes.Pool2[2]
	if rows*cols < cfg.NumDigits {
		return 0, 0, 0, fmt.Errorf("synthetic: %d×%d grid cannot hold %d digits", rows, cols, cfg.NumDigits)
	}
	if cfg.FC1Outputs < cfg.NumDigits {
		return 0, 0, 0, fmt.Errorf("synthetic: %d hidden units cannot carry %d digits", cfg.FC1Outputs, cfg.NumDigits)
	}
	return rows, cols, cfg.PoolFactor * cfg.PoolFactor, nil
}

// Weights returns the block-detector weight set for cfg.
func Weights(cfg *nn.Config) (*nn.Weights, error) {
	_, _, _, err := Grid(cfg)
	if err != nil {
		return nil, err
	}
	shapes := nn.WeightShapes(cfg)

	conv1 := tensor.Zeros(shapes[nn.WeightConv1])
	for c := 0; c < cfg.InputChannels; c++ {
		for m := 0; m < cfg.Conv1Filters; m++ {
			conv1.Set(1/float32(cfg.InputChannels), 0, 0, c, m)
		}
	}

	conv2 := tensor.Zeros(shapes[nn.WeightConv2])
	for c := 0; c < cfg.Conv1Filters; c++ {
		for m := 0; m < cfg.Conv2Filters; m++ {
			conv2.Set(1/float32(cfg.Conv1Filters), 0, 0, c, m)
		}
	}

	// Flattened pool2 index of cell j, channel 0, is j*Conv2Filters.
	fc1 := tensor.Zeros(shapes[nn.WeightFC1])
	for j := 0; j < cfg.NumDigits; j++ {
		fc1.Set(1, j*cfg.Conv2Filters, j)
	}

	fc2 := tensor.Zeros(shapes[nn.WeightFC2])
	for k := 0; k < cfg.NumDigits; k++ {
		fc2.Set(1, k, k)
	}

	return &nn.Weights{Conv1: conv1, Conv2: conv2, FC1: fc1, FC2: fc2}, nil
}

// Labels draws n digits uniformly.
func Labels(rng *rand.Rand, n, digits int) []int32 {
	labels := make([]int32, n)
	for i := range labels {
		//nolint:gosec // G115: digits is small.
		labels[i] = int32(rng.Intn(digits))
	}
	return labels
}

// Dataset renders one image per label and the matching one-hot reference
// tensor.
//
// Returns:
//   - x: [N, H, W, C] images, background in [0, Background), block = 1
//   - y: [N, digits] one-hot labels
func Dataset(cfg *nn.Config, rng *rand.Rand, labels []int32) (x, y *tensor.Tensor, err error) {
	_, cols, side, err := Grid(cfg)
	if err != nil {
		return nil, nil, err
	}
	n := len(labels)
	if n == 0 {
		return nil, nil, fmt.Errorf("synthetic: no labels")
	}

	x = tensor.Zeros(tensor.Shape{n, cfg.InputHeight, cfg.InputWidth, cfg.InputChannels})
	y = tensor.Zeros(tensor.Shape{n, cfg.NumDigits})

	for i, label := range labels {
		if label < 0 || int(label) >= cfg.NumDigits {
			x.Release()
			y.Release()
			return nil, nil, fmt.Errorf("synthetic: label %d out of range [0, %d)", label, cfg.NumDigits)
		}
		y.Set(1, i, int(label))

		top := int(label) / cols * side
		left := int(label) % cols * side
		for h := 0; h < cfg.InputHeight; h++ {
			for w := 0; w < cfg.InputWidth; w++ {
				inBlock := h >= top && h < top+side && w >= left && w < left+side
				for c := 0; c < cfg.InputChannels; c++ {
					v := float32(1)
					if !inBlock {
						v = rng.Float32() * Background
					}
					x.Set(v, i, h, w, c)
				}
			}
		}
	}
	return x, y, nil
}
