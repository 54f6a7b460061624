// Package nn runs the fixed LeNet-style forward pipeline:
//
//	conv1 → relu → pool1 → conv2 → relu → pool2 → flatten → fc1 → relu → fc2 → argmax
//
// over a batch of channel-last images, producing one predicted digit per
// sample. The topology is fixed; Config only sizes it.
package nn

import (
	"fmt"

	"github.com/born-ml/lenet/internal/backend/cpu"
)

// ConvAlgorithm selects how the convolution stages are computed.
type ConvAlgorithm int

const (
	// ConvUnrolled lowers each convolution to a blocked matrix multiply with
	// the following ReLU fused into the store.
	ConvUnrolled ConvAlgorithm = iota
	// ConvDirect uses the nested-loop reference convolution followed by a
	// separate ReLU pass.
	ConvDirect
)

// String returns the algorithm name used on the command line.
func (a ConvAlgorithm) String() string {
	switch a {
	case ConvUnrolled:
		return "unrolled"
	case ConvDirect:
		return "direct"
	default:
		return fmt.Sprintf("ConvAlgorithm(%d)", int(a))
	}
}

// ParseConvAlgorithm maps an algorithm name back to its value.
func ParseConvAlgorithm(s string) (ConvAlgorithm, error) {
	switch s {
	case "unrolled":
		return ConvUnrolled, nil
	case "direct":
		return ConvDirect, nil
	default:
		return 0, fmt.Errorf("unknown conv algorithm %q (want direct or unrolled)", s)
	}
}

// Config holds the network hyperparameters. Build it once and share it by
// pointer; nothing in this package mutates it.
type Config struct {
	InputHeight   int // Image rows
	InputWidth    int // Image columns
	InputChannels int // Image channels

	Conv1Kernel  int // Square filter extent of conv1
	Conv1Filters int // Output channels of conv1
	Conv2Kernel  int // Square filter extent of conv2
	Conv2Filters int // Output channels of conv2
	PoolFactor   int // Non-overlapping pool window, both pool stages

	FC1Inputs  int // Flattened pool2 volume
	FC1Outputs int // Hidden units
	NumDigits  int // Classes, the fc2 output width

	// BatchSize pins the number of samples per Forward call; 0 accepts any.
	BatchSize int

	ConvAlgorithm ConvAlgorithm
	PoolRemainder cpu.PoolRemainder
}

// DefaultConfig returns the 28×28 digit classifier configuration.
func DefaultConfig() *Config {
	return &Config{
		InputHeight:   28,
		InputWidth:    28,
		InputChannels: 1,
		Conv1Kernel:   5,
		Conv1Filters:  32,
		Conv2Kernel:   5,
		Conv2Filters:  64,
		PoolFactor:    2,
		FC1Inputs:     1024,
		FC1Outputs:    128,
		NumDigits:     10,
		ConvAlgorithm: ConvUnrolled,
		PoolRemainder: cpu.PoolTruncate,
	}
}

// Validate checks every extent is positive and that the layers chain: the
// spatial extents survive both conv/pool pairs and fc1 consumes exactly the
// flattened pool2 volume.
func (c *Config) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"input height", c.InputHeight},
		{"input width", c.InputWidth},
		{"input channels", c.InputChannels},
		{"conv1 kernel", c.Conv1Kernel},
		{"conv1 filters", c.Conv1Filters},
		{"conv2 kernel", c.Conv2Kernel},
		{"conv2 filters", c.Conv2Filters},
		{"pool factor", c.PoolFactor},
		{"fc1 inputs", c.FC1Inputs},
		{"fc1 outputs", c.FC1Outputs},
		{"digits", c.NumDigits},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return fmt.Errorf("config: %s must be > 0, got %d", f.name, f.value)
		}
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("config: batch size must be >= 0, got %d", c.BatchSize)
	}

	shapes, err := ComputeShapes(c, 1)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if volume := shapes.Flatten[1]; volume != c.FC1Inputs {
		return fmt.Errorf("config: fc1 inputs %d do not match pool2 volume %d (%v)",
			c.FC1Inputs, volume, shapes.Pool2[1:])
	}
	return nil
}
