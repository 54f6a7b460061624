package nn

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/tensor"
)

// Backend is the set of operators the pipeline runs on.
type Backend interface {
	Name() string
	ConvDirect(x, w *tensor.Tensor) (*tensor.Tensor, error)
	ConvUnrolled(x, w *tensor.Tensor, fuseReLU bool) (*tensor.Tensor, error)
	AvgPool2D(x *tensor.Tensor, factor int, remainder cpu.PoolRemainder) (*tensor.Tensor, error)
	FullyConnected(x, w *tensor.Tensor, fuseReLU bool) (*tensor.Tensor, error)
	ReLU(x *tensor.Tensor) *tensor.Tensor
	Argmax(x *tensor.Tensor) ([]int32, error)
}

// Compile-time check that the CPU backend implements Backend.
var _ Backend = (*cpu.CPUBackend)(nil)

// Option configures a Network.
type Option func(*Network)

// WithLogger makes the network log every stage at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Network) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// Network binds a configuration and its weights to a backend.
//
// Example:
//
//	net, err := nn.NewNetwork(nn.DefaultConfig(), weights, cpu.New(cpu.DefaultOptions()))
//	if err != nil {
//	    return err
//	}
//	labels, err := net.Forward(images) // images: [N, 28, 28, 1]
//
// A Network holds no per-call state; Forward may be called concurrently.
type Network struct {
	cfg     *Config
	weights *Weights
	backend Backend
	logger  *slog.Logger
}

// NewNetwork validates cfg and weights against each other.
func NewNetwork(cfg *Config, weights *Weights, backend Backend, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if weights == nil {
		return nil, fmt.Errorf("weights: nil")
	}
	if err := weights.Validate(cfg); err != nil {
		return nil, err
	}

	n := &Network{
		cfg:     cfg,
		weights: weights,
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Config returns the network configuration.
func (n *Network) Config() *Config {
	return n.cfg
}

// Forward classifies a batch of images x [N, H, W, C] and returns one digit
// per sample.
//
// Errors are fatal for the batch and no partial result is returned:
//   - tensor.ErrShapeMismatch if x disagrees with the configured image or
//     batch size
//   - tensor.ErrOutOfMemory, prefixed with the failing stage, if a buffer
//     cannot be allocated
//
// Every intermediate tensor has been released by the time Forward returns.
func (n *Network) Forward(x *tensor.Tensor) ([]int32, error) {
	return n.forward(x, nil)
}

// ForwardTrace is Forward that also reports the shape and wall time of
// every stage.
func (n *Network) ForwardTrace(x *tensor.Tensor) ([]int32, []StageStat, error) {
	stats := make([]StageStat, 0, len(Stages))
	labels, err := n.forward(x, &stats)
	if err != nil {
		return nil, nil, err
	}
	return labels, stats, nil
}

// checkInput matches x against the configured image and batch size.
func (n *Network) checkInput(x *tensor.Tensor) error {
	s := x.Shape()
	if len(s) != 4 || s[1] != n.cfg.InputHeight || s[2] != n.cfg.InputWidth || s[3] != n.cfg.InputChannels {
		return &tensor.ShapeError{
			Op:      "forward",
			Operand: "input",
			Want:    fmt.Sprintf("N×%d×%d×%d", n.cfg.InputHeight, n.cfg.InputWidth, n.cfg.InputChannels),
			Got:     s,
		}
	}
	if n.cfg.BatchSize > 0 && s[0] != n.cfg.BatchSize {
		return &tensor.ShapeError{
			Op:      "forward",
			Operand: "input",
			Want:    fmt.Sprintf("batch of %d", n.cfg.BatchSize),
			Got:     s,
		}
	}
	return nil
}

func (n *Network) forward(x *tensor.Tensor, stats *[]StageStat) ([]int32, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}
	shapes, err := ComputeShapes(n.cfg, x.Shape()[0])
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	run := func(stage Stage, op func() (*tensor.Tensor, error)) (*tensor.Tensor, error) {
		start := time.Now()
		out, err := op()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		n.record(stats, stage, out.Shape(), time.Since(start))
		return out, nil
	}

	conv1, err := run(StageConv1, func() (*tensor.Tensor, error) { return n.conv(x, n.weights.Conv1) })
	if err != nil {
		return nil, err
	}
	defer conv1.Release()

	pool1, err := run(StagePool1, func() (*tensor.Tensor, error) { return n.pool(conv1) })
	if err != nil {
		return nil, err
	}
	defer pool1.Release()
	conv1.Release()

	conv2, err := run(StageConv2, func() (*tensor.Tensor, error) { return n.conv(pool1, n.weights.Conv2) })
	if err != nil {
		return nil, err
	}
	defer conv2.Release()
	pool1.Release()

	pool2, err := run(StagePool2, func() (*tensor.Tensor, error) { return n.pool(conv2) })
	if err != nil {
		return nil, err
	}
	defer pool2.Release()
	conv2.Release()

	// Flatten moves pool2's buffer; pool2's deferred release becomes a no-op.
	flat, err := run(StageFlatten, func() (*tensor.Tensor, error) { return pool2.Reshape(shapes.Flatten) })
	if err != nil {
		return nil, err
	}
	defer flat.Release()

	fc1, err := run(StageFC1, func() (*tensor.Tensor, error) {
		out, err := n.backend.FullyConnected(flat, n.weights.FC1, false)
		if err != nil {
			return nil, err
		}
		return n.backend.ReLU(out), nil
	})
	if err != nil {
		return nil, err
	}
	defer fc1.Release()
	flat.Release()

	fc2, err := run(StageFC2, func() (*tensor.Tensor, error) {
		return n.backend.FullyConnected(fc1, n.weights.FC2, false)
	})
	if err != nil {
		return nil, err
	}
	defer fc2.Release()
	fc1.Release()

	start := time.Now()
	labels, err := n.backend.Argmax(fc2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageArgmax, err)
	}
	n.record(stats, StageArgmax, tensor.Shape{len(labels)}, time.Since(start))

	return labels, nil
}

// conv runs one convolution stage including its ReLU.
func (n *Network) conv(x, w *tensor.Tensor) (*tensor.Tensor, error) {
	if n.cfg.ConvAlgorithm == ConvDirect {
		y, err := n.backend.ConvDirect(x, w)
		if err != nil {
			return nil, err
		}
		return n.backend.ReLU(y), nil
	}
	return n.backend.ConvUnrolled(x, w, true)
}

func (n *Network) pool(x *tensor.Tensor) (*tensor.Tensor, error) {
	return n.backend.AvgPool2D(x, n.cfg.PoolFactor, n.cfg.PoolRemainder)
}

func (n *Network) record(stats *[]StageStat, stage Stage, shape tensor.Shape, d time.Duration) {
	n.logger.Debug("stage done",
		"stage", stage.String(),
		"shape", shape.String(),
		"duration", d,
	)
	if stats != nil {
		*stats = append(*stats, StageStat{Stage: stage, Shape: shape, Duration: d})
	}
}

// Forward classifies x with the default configuration on a CPU backend
// sized for the host.
func Forward(x *tensor.Tensor, weights *Weights) ([]int32, error) {
	net, err := NewNetwork(DefaultConfig(), weights, cpu.New(cpu.DefaultOptions()))
	if err != nil {
		return nil, err
	}
	return net.Forward(x)
}

// Correctness returns the fraction of predictions that match the reference
// labels.
func Correctness(predicted, reference []int32) (float64, error) {
	if len(predicted) != len(reference) {
		return 0, &tensor.ShapeError{
			Op:      "correctness",
			Operand: "predicted",
			Want:    fmt.Sprintf("%d labels", len(reference)),
			Got:     tensor.Shape{len(predicted)},
		}
	}
	if len(reference) == 0 {
		return 0, nil
	}
	matches := 0
	for i, p := range predicted {
		if p == reference[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(reference)), nil
}
