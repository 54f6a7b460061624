package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/born-ml/lenet/internal/loader"
	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/synthetic"
)

// File names written by gen.
const (
	genModelFile    = "model.safetensors"
	genTestDataFile = "testdata.safetensors"
)

// runGen writes a synthetic model and a matching test-data file that the
// model classifies with correctness 1.
func runGen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lenet gen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", ".", "Output directory")
	batchSize := fs.Int("batch-size", 10000, "Number of test samples")
	seed := fs.Int64("seed", 1, "Random seed for labels and background noise")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *batchSize < 1 {
		fmt.Fprintf(stderr, "lenet gen: -batch-size must be >= 1, got %d\n", *batchSize)
		return 2
	}

	if err := gen(*out, *batchSize, *seed); err != nil {
		fmt.Fprintf(stderr, "lenet gen: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s and %s (%d samples) to %s\n", genModelFile, genTestDataFile, *batchSize, *out)
	return 0
}

func gen(dir string, batchSize int, seed int64) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	cfg := nn.DefaultConfig()
	weights, err := synthetic.Weights(cfg)
	if err != nil {
		return err
	}
	if err := loader.SaveWeights(filepath.Join(dir, genModelFile), weights); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: fixtures, not secrets.
	labels := synthetic.Labels(rng, batchSize, cfg.NumDigits)
	x, y, err := synthetic.Dataset(cfg, rng, labels)
	if err != nil {
		return err
	}
	data := &loader.Dataset{X: x, Y: y}
	defer data.Release()

	return loader.SaveTestData(filepath.Join(dir, genTestDataFile), data)
}
