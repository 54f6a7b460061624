// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the public API of the digit-classification network:
//
//	conv1 → relu → pool1 → conv2 → relu → pool2 → flatten → fc1 → relu → fc2 → argmax
//
// The single-call surface classifies a batch with the default configuration
// on a CPU backend sized for the host:
//
//	labels, err := nn.Forward(images, weights) // images: [N, 28, 28, 1]
//
// A Network built with NewNetwork lets the caller choose the configuration,
// the backend and a logger.
package nn

import (
	"log/slog"

	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/tensor"
)

// Config holds the network hyperparameters.
type Config = nn.Config

// ConvAlgorithm selects how the convolution stages are computed.
type ConvAlgorithm = nn.ConvAlgorithm

// Convolution algorithms.
const (
	ConvUnrolled ConvAlgorithm = nn.ConvUnrolled
	ConvDirect   ConvAlgorithm = nn.ConvDirect
)

// Weights are the four learned tensors of the network.
type Weights = nn.Weights

// Weight tensor names.
const (
	WeightConv1 = nn.WeightConv1
	WeightConv2 = nn.WeightConv2
	WeightFC1   = nn.WeightFC1
	WeightFC2   = nn.WeightFC2
)

// Network binds a configuration and its weights to a backend.
type Network = nn.Network

// Backend is the set of operators a Network runs on.
type Backend = nn.Backend

// Option configures a Network.
type Option = nn.Option

// Shapes holds the output shape of every stage.
type Shapes = nn.Shapes

// Stage identifies one step of the pipeline.
type Stage = nn.Stage

// StageStat is the shape and duration of one executed stage.
type StageStat = nn.StageStat

// DefaultConfig returns the 28×28 single-channel digit configuration.
func DefaultConfig() *Config {
	return nn.DefaultConfig()
}

// ParseConvAlgorithm parses "direct" or "unrolled".
func ParseConvAlgorithm(s string) (ConvAlgorithm, error) {
	return nn.ParseConvAlgorithm(s)
}

// ComputeShapes returns every stage shape for a batch of the given size.
func ComputeShapes(cfg *Config, batch int) (Shapes, error) {
	return nn.ComputeShapes(cfg, batch)
}

// WeightShapes returns the expected shape of each weight tensor by name.
func WeightShapes(cfg *Config) map[string]tensor.Shape {
	return nn.WeightShapes(cfg)
}

// WeightsFromMap builds Weights from tensors named conv1, conv2, fc1, fc2.
func WeightsFromMap(m map[string]*tensor.Tensor) (*Weights, error) {
	return nn.WeightsFromMap(m)
}

// NewNetwork validates cfg and weights against each other and binds them
// to backend.
//
// Example:
//
//	net, err := nn.NewNetwork(nn.DefaultConfig(), weights, cpu.New())
//	if err != nil {
//	    return err
//	}
//	labels, err := net.Forward(images)
func NewNetwork(cfg *Config, weights *Weights, backend Backend, opts ...Option) (*Network, error) {
	return nn.NewNetwork(cfg, weights, backend, opts...)
}

// WithLogger makes the network log every stage at debug level.
func WithLogger(logger *slog.Logger) Option {
	return nn.WithLogger(logger)
}

// Forward classifies x with the default configuration on a CPU backend.
func Forward(x *tensor.Tensor, weights *Weights) ([]int32, error) {
	return nn.Forward(x, weights)
}

// Correctness returns the fraction of predictions equal to the reference.
func Correctness(predicted, reference []int32) (float64, error) {
	return nn.Correctness(predicted, reference)
}
