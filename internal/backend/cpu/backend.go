// Package cpu implements the CPU operators of the forward pipeline:
// convolution (direct and unroll-and-multiply), blocked matrix multiply,
// average pooling, fully-connected layers, ReLU and argmax.
//
// All tensors use the channel-last layout: activations are
// [batch, height, width, channel] and filters are
// [filter_h, filter_w, in_channel, out_channel].
package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/platform"
	"github.com/born-ml/lenet/internal/tensor"
)

// Options configures a CPUBackend.
type Options struct {
	Allocator *tensor.Allocator // Source of every output and transient buffer
	Parallel  parallel.Config   // Worker pool for independent work items
	TileWidth int               // Square tile width of the blocked matmul
	GroupSize int               // Workers cooperating on one output tile
}

// DefaultOptions sizes the tiles from the host CPU and uses an unlimited
// allocator.
func DefaultOptions() Options {
	info := platform.Detect()
	tile := platform.TileWidth(info)
	return Options{
		Allocator: tensor.NewAllocator(0),
		Parallel:  parallel.DefaultConfig(),
		TileWidth: tile,
		GroupSize: platform.GroupSize(info, tile),
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.TileWidth < 1 {
		return fmt.Errorf("cpu: tile width must be >= 1, got %d", o.TileWidth)
	}
	if o.GroupSize < 1 {
		return fmt.Errorf("cpu: group size must be >= 1, got %d", o.GroupSize)
	}
	return nil
}

// CPUBackend runs the operators on the host CPU. It holds no state across
// calls other than its options; it is safe for concurrent use.
type CPUBackend struct {
	alloc *tensor.Allocator
	par   parallel.Config
	tile  int
	group int
}

// New creates a CPU backend. Zero-valued options fall back to defaults:
// a fresh unlimited allocator, tile width 16 and, when parallelism is
// enabled, a group as wide as the tile capped by the worker count.
func New(opts Options) *CPUBackend {
	if opts.Allocator == nil {
		opts.Allocator = tensor.NewAllocator(0)
	}
	if opts.TileWidth < 1 {
		opts.TileWidth = platform.DefaultTileWidth
	}
	if opts.GroupSize < 1 {
		opts.GroupSize = 1
		if opts.Parallel.Enabled {
			opts.GroupSize = max(min(opts.TileWidth, opts.Parallel.NumWorkers), 1)
		}
	}
	opts.GroupSize = min(opts.GroupSize, opts.TileWidth)

	return &CPUBackend{
		alloc: opts.Allocator,
		par:   opts.Parallel,
		tile:  opts.TileWidth,
		group: opts.GroupSize,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Allocator returns the allocator every output tensor is drawn from.
func (cpu *CPUBackend) Allocator() *tensor.Allocator {
	return cpu.alloc
}

// TileWidth returns the blocked matmul tile width.
func (cpu *CPUBackend) TileWidth() int {
	return cpu.tile
}

// GroupSize returns the number of workers cooperating on one tile.
func (cpu *CPUBackend) GroupSize() int {
	return cpu.group
}

// expectRank returns a ShapeError if t is not of the given rank.
func expectRank(op, operand string, t *tensor.Tensor, rank int) error {
	if len(t.Shape()) != rank {
		return &tensor.ShapeError{
			Op:      op,
			Operand: operand,
			Want:    fmt.Sprintf("%dD", rank),
			Got:     t.Shape(),
		}
	}
	return nil
}
