package nn

import (
	"fmt"
	"time"

	"github.com/born-ml/lenet/internal/tensor"
)

// Stage identifies one step of the forward pipeline.
type Stage int

const (
	StageConv1 Stage = iota
	StagePool1
	StageConv2
	StagePool2
	StageFlatten
	StageFC1
	StageFC2
	StageArgmax
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{
	StageConv1, StagePool1, StageConv2, StagePool2,
	StageFlatten, StageFC1, StageFC2, StageArgmax,
}

func (s Stage) String() string {
	switch s {
	case StageConv1:
		return "conv1"
	case StagePool1:
		return "pool1"
	case StageConv2:
		return "conv2"
	case StagePool2:
		return "pool2"
	case StageFlatten:
		return "flatten"
	case StageFC1:
		return "fc1"
	case StageFC2:
		return "fc2"
	case StageArgmax:
		return "argmax"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// StageStat records one executed stage.
type StageStat struct {
	Stage    Stage
	Shape    tensor.Shape // Output shape; N for argmax
	Duration time.Duration
}
