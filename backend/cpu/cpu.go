// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend the network runs on.
//
// Convolutions run either as a direct loop nest or unrolled into a tiled
// matrix multiply whose tiles are computed in parallel, each by a small
// group of goroutines that share a staged tile behind a barrier.
//
//	backend := cpu.New()
//	net, err := nn.NewNetwork(nn.DefaultConfig(), weights, backend)
//
// The backend is safe for concurrent use. Operators share no mutable
// state except the allocator, whose accounting is atomic.
package cpu

import (
	internalcpu "github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/nn"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements nn.Backend.
var _ nn.Backend = (*Backend)(nil)

// Options configures tile width, worker group size, parallelism and the
// allocator of a Backend.
type Options = internalcpu.Options

// PoolRemainder selects how average pooling treats a border narrower than
// the pool factor.
type PoolRemainder = internalcpu.PoolRemainder

// Pool remainder policies.
const (
	PoolTruncate   PoolRemainder = internalcpu.PoolTruncate
	PoolStrict     PoolRemainder = internalcpu.PoolStrict
	PoolPadAverage PoolRemainder = internalcpu.PoolPadAverage
)

// DefaultOptions sizes tiles and worker groups for the host CPU.
func DefaultOptions() Options {
	return internalcpu.DefaultOptions()
}

// New creates a CPU backend with DefaultOptions.
func New() *Backend {
	return internalcpu.New(internalcpu.DefaultOptions())
}

// NewWithOptions creates a CPU backend with explicit options.
//
// Example:
//
//	opts := cpu.DefaultOptions()
//	opts.Allocator = tensor.NewAllocator(256 << 20)
//	backend := cpu.NewWithOptions(opts)
func NewWithOptions(opts Options) *Backend {
	return internalcpu.New(opts)
}
