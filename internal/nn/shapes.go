package nn

import (
	"fmt"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/tensor"
)

// Shapes holds the output shape of every stage for one batch size.
type Shapes struct {
	Input   tensor.Shape // N×H×W×C
	Conv1   tensor.Shape // N×(H-K1+1)×(W-K1+1)×M1
	Pool1   tensor.Shape
	Conv2   tensor.Shape
	Pool2   tensor.Shape
	Flatten tensor.Shape // N×(pool2 volume)
	FC1     tensor.Shape
	FC2     tensor.Shape // N×digits
}

// Of returns the output shape of a tensor-producing stage, or nil for
// StageArgmax.
func (s Shapes) Of(stage Stage) tensor.Shape {
	switch stage {
	case StageConv1:
		return s.Conv1
	case StagePool1:
		return s.Pool1
	case StageConv2:
		return s.Conv2
	case StagePool2:
		return s.Pool2
	case StageFlatten:
		return s.Flatten
	case StageFC1:
		return s.FC1
	case StageFC2:
		return s.FC2
	default:
		return nil
	}
}

// ComputeShapes derives every stage shape from cfg for a batch of the given
// size. It is pure: the same inputs always give the same Shapes, and
// nothing is allocated beyond the returned slices.
//
// For the default config and any batch N:
//
//	conv1 N×24×24×32, pool1 N×12×12×32, conv2 N×8×8×64, pool2 N×4×4×64,
//	flatten N×1024, fc1 N×128, fc2 N×10
func ComputeShapes(cfg *Config, batch int) (Shapes, error) {
	if batch <= 0 {
		return Shapes{}, fmt.Errorf("batch size must be > 0, got %d", batch)
	}

	var s Shapes
	s.Input = tensor.Shape{batch, cfg.InputHeight, cfg.InputWidth, cfg.InputChannels}

	h, w, err := convExtent("conv1", cfg.InputHeight, cfg.InputWidth, cfg.Conv1Kernel)
	if err != nil {
		return Shapes{}, err
	}
	s.Conv1 = tensor.Shape{batch, h, w, cfg.Conv1Filters}

	h, w, err = poolExtent("pool1", h, w, cfg.PoolFactor, cfg.PoolRemainder)
	if err != nil {
		return Shapes{}, err
	}
	s.Pool1 = tensor.Shape{batch, h, w, cfg.Conv1Filters}

	h, w, err = convExtent("conv2", h, w, cfg.Conv2Kernel)
	if err != nil {
		return Shapes{}, err
	}
	s.Conv2 = tensor.Shape{batch, h, w, cfg.Conv2Filters}

	h, w, err = poolExtent("pool2", h, w, cfg.PoolFactor, cfg.PoolRemainder)
	if err != nil {
		return Shapes{}, err
	}
	s.Pool2 = tensor.Shape{batch, h, w, cfg.Conv2Filters}

	s.Flatten = tensor.Shape{batch, h * w * cfg.Conv2Filters}
	s.FC1 = tensor.Shape{batch, cfg.FC1Outputs}
	s.FC2 = tensor.Shape{batch, cfg.NumDigits}
	return s, nil
}

func convExtent(stage string, h, w, k int) (int, int, error) {
	if k > h || k > w {
		return 0, 0, &tensor.ShapeError{
			Op:      stage,
			Operand: "input",
			Want:    fmt.Sprintf("at least %d×%d", k, k),
			Got:     tensor.Shape{h, w},
		}
	}
	return h - k + 1, w - k + 1, nil
}

func poolExtent(stage string, h, w, factor int, r cpu.PoolRemainder) (int, int, error) {
	if r == cpu.PoolStrict && (h%factor != 0 || w%factor != 0) {
		return 0, 0, &tensor.ShapeError{
			Op:      stage,
			Operand: "input",
			Want:    fmt.Sprintf("extents divisible by %d", factor),
			Got:     tensor.Shape{h, w},
		}
	}
	ph, pw := cpu.PoolExtent(h, factor, r), cpu.PoolExtent(w, factor, r)
	if ph <= 0 || pw <= 0 {
		return 0, 0, &tensor.ShapeError{
			Op:      stage,
			Operand: "input",
			Want:    fmt.Sprintf("at least %d×%d", factor, factor),
			Got:     tensor.Shape{h, w},
		}
	}
	return ph, pw, nil
}
