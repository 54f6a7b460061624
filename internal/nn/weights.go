package nn

import (
	"fmt"

	"github.com/born-ml/lenet/internal/tensor"
)

// Weight tensor names, as stored in model files.
const (
	WeightConv1 = "conv1"
	WeightConv2 = "conv2"
	WeightFC1   = "fc1"
	WeightFC2   = "fc2"
)

// WeightNames lists the weight tensors in pipeline order.
var WeightNames = []string{WeightConv1, WeightConv2, WeightFC1, WeightFC2}

// Weights are the four learned tensors of the network. They are read-only
// once loaded and shared by every worker of every Forward call.
type Weights struct {
	Conv1 *tensor.Tensor // K1×K1×C×M1
	Conv2 *tensor.Tensor // K2×K2×M1×M2
	FC1   *tensor.Tensor // (pool2 volume)×hidden
	FC2   *tensor.Tensor // hidden×digits
}

// WeightShapes returns the expected shape of each weight tensor, keyed by
// name.
func WeightShapes(cfg *Config) map[string]tensor.Shape {
	return map[string]tensor.Shape{
		WeightConv1: {cfg.Conv1Kernel, cfg.Conv1Kernel, cfg.InputChannels, cfg.Conv1Filters},
		WeightConv2: {cfg.Conv2Kernel, cfg.Conv2Kernel, cfg.Conv1Filters, cfg.Conv2Filters},
		WeightFC1:   {cfg.FC1Inputs, cfg.FC1Outputs},
		WeightFC2:   {cfg.FC1Outputs, cfg.NumDigits},
	}
}

// ByName returns the weight tensors keyed by name.
func (w *Weights) ByName() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		WeightConv1: w.Conv1,
		WeightConv2: w.Conv2,
		WeightFC1:   w.FC1,
		WeightFC2:   w.FC2,
	}
}

// WeightsFromMap picks the named weight tensors out of m. Missing names
// are reported; extra entries are ignored.
func WeightsFromMap(m map[string]*tensor.Tensor) (*Weights, error) {
	for _, name := range WeightNames {
		if m[name] == nil {
			return nil, fmt.Errorf("missing weight tensor %q", name)
		}
	}
	return &Weights{
		Conv1: m[WeightConv1],
		Conv2: m[WeightConv2],
		FC1:   m[WeightFC1],
		FC2:   m[WeightFC2],
	}, nil
}

// Validate checks every tensor is present and shaped as cfg expects.
// A disagreement is reported as a *tensor.ShapeError.
func (w *Weights) Validate(cfg *Config) error {
	want := WeightShapes(cfg)
	got := w.ByName()
	for _, name := range WeightNames {
		t := got[name]
		if t == nil {
			return fmt.Errorf("weights: %s is missing", name)
		}
		if !t.Shape().Equal(want[name]) {
			return &tensor.ShapeError{
				Op:      "weights",
				Operand: name,
				Want:    want[name].String(),
				Got:     t.Shape(),
			}
		}
	}
	return nil
}

// Release returns every weight buffer to its allocator.
func (w *Weights) Release() {
	for _, t := range w.ByName() {
		t.Release()
	}
}
