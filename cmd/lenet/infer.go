package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/loader"
	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/platform"
	"github.com/born-ml/lenet/internal/tensor"
)

// inferFlags holds the inference command line.
type inferFlags struct {
	testdata      string
	idxImages     string
	idxLabels     string
	model         string
	batchSize     int
	conv          string
	tile          int
	workers       int
	poolRemainder string
	memLimit      int64
	trace         bool
	verbose       bool
}

func parseInferFlags(args []string, stderr io.Writer) (*inferFlags, error) {
	f := &inferFlags{}
	fs := flag.NewFlagSet("lenet", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.testdata, "testdata", "", "SafeTensors test data file (tensors x and y)")
	fs.StringVar(&f.idxImages, "idx-images", "", "MNIST IDX image file, instead of -testdata")
	fs.StringVar(&f.idxLabels, "idx-labels", "", "MNIST IDX label file, instead of -testdata")
	fs.StringVar(&f.model, "model", "", "SafeTensors model file (tensors conv1, conv2, fc1, fc2)")
	fs.IntVar(&f.batchSize, "batch-size", 10000, "Number of samples the test data must hold")
	fs.StringVar(&f.conv, "conv", nn.ConvUnrolled.String(), "Convolution algorithm: direct or unrolled")
	fs.IntVar(&f.tile, "tile", 0, "Matmul tile width (0 = sized from the L1 cache)")
	fs.IntVar(&f.workers, "workers", 0, "Worker goroutines (0 = one per CPU, 1 = sequential)")
	fs.StringVar(&f.poolRemainder, "pool-remainder", cpu.PoolTruncate.String(), "Pooling of odd borders: truncate, strict or pad")
	fs.Int64Var(&f.memLimit, "mem-limit", 0, "Byte limit for intermediate tensors (0 = unlimited)")
	fs.BoolVar(&f.trace, "trace", false, "Log the shape and time of every stage")
	fs.BoolVar(&f.verbose, "v", false, "Verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if f.model == "" {
		return nil, errors.New("-model is required")
	}
	idx := f.idxImages != "" || f.idxLabels != ""
	switch {
	case idx && f.testdata != "":
		return nil, errors.New("-testdata and -idx-images/-idx-labels are mutually exclusive")
	case idx && (f.idxImages == "" || f.idxLabels == ""):
		return nil, errors.New("-idx-images and -idx-labels must be given together")
	case !idx && f.testdata == "":
		return nil, errors.New("-testdata or -idx-images/-idx-labels is required")
	}
	if f.batchSize < 1 {
		return nil, fmt.Errorf("-batch-size must be >= 1, got %d", f.batchSize)
	}
	return f, nil
}

// config maps the flags onto the network configuration.
func (f *inferFlags) config() (*nn.Config, error) {
	cfg := nn.DefaultConfig()
	cfg.BatchSize = f.batchSize

	algo, err := nn.ParseConvAlgorithm(f.conv)
	if err != nil {
		return nil, err
	}
	cfg.ConvAlgorithm = algo

	remainder, err := cpu.ParsePoolRemainder(f.poolRemainder)
	if err != nil {
		return nil, err
	}
	cfg.PoolRemainder = remainder

	return cfg, cfg.Validate()
}

// backendOptions maps the flags onto the CPU backend options.
func (f *inferFlags) backendOptions() cpu.Options {
	opts := cpu.DefaultOptions()
	opts.Allocator = tensor.NewAllocator(f.memLimit)

	switch {
	case f.workers == 1:
		opts.Parallel = parallel.Sequential()
	case f.workers > 1:
		opts.Parallel = parallel.Config{Enabled: true, NumWorkers: f.workers, MinChunkSize: 1}
	}
	if f.tile > 0 {
		opts.TileWidth = f.tile
	}
	opts.GroupSize = max(min(opts.GroupSize, opts.TileWidth, max(opts.Parallel.NumWorkers, 1)), 1)
	return opts
}

func runInfer(args []string, stdout, stderr io.Writer) int {
	f, err := parseInferFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "lenet: %v\n", err)
		}
		return 2
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := infer(f, stdout, logger); err != nil {
		logger.Error("inference failed", "error", err)
		return 1
	}
	return 0
}

func infer(f *inferFlags, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := f.config()
	if err != nil {
		return err
	}

	info := platform.Detect()
	opts := f.backendOptions()
	logger.Debug("host",
		"cpu", info.Brand,
		"arch", info.Arch,
		"cores", info.LogicalCores,
		"l1d", info.L1DataCache,
		"avx2", info.AVX2,
		"fma", info.FMA,
		"asimd", info.ASIMD,
	)
	logger.Debug("backend",
		"conv", cfg.ConvAlgorithm.String(),
		"tile", opts.TileWidth,
		"group", opts.GroupSize,
		"workers", opts.Parallel.NumWorkers,
		"pool_remainder", cfg.PoolRemainder.String(),
		"mem_limit", f.memLimit,
	)

	weights, err := loader.LoadWeights(f.model, cfg)
	if err != nil {
		return err
	}
	defer weights.Release()

	var data *loader.Dataset
	if f.testdata != "" {
		data, err = loader.LoadTestData(f.testdata, cfg, f.batchSize)
	} else {
		data, err = loader.LoadIDX(f.idxImages, f.idxLabels, cfg, f.batchSize)
	}
	if err != nil {
		return err
	}
	defer data.Release()
	logger.Debug("loaded", "samples", data.Len())

	backend := cpu.New(opts)
	net, err := nn.NewNetwork(cfg, weights, backend, nn.WithLogger(logger))
	if err != nil {
		return err
	}

	var (
		predicted []int32
		trace     []nn.StageStat
	)
	start := time.Now()
	if f.trace {
		predicted, trace, err = net.ForwardTrace(data.X)
	} else {
		predicted, err = net.Forward(data.X)
	}
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	for _, st := range trace {
		logger.Info("stage", "stage", st.Stage.String(), "shape", st.Shape.String(), "duration", st.Duration)
	}

	reference, err := backend.Argmax(data.Y)
	if err != nil {
		return err
	}
	correctness, err := nn.Correctness(predicted, reference)
	if err != nil {
		return err
	}

	stats := backend.Allocator().Stats()
	logger.Debug("memory", "peak_bytes", stats.PeakBytes, "allocs", stats.Allocs, "live_bytes", stats.LiveBytes)

	fmt.Fprintln(stdout, report(len(predicted), elapsed, correctness))
	return nil
}

// report formats the summary line.
func report(n int, elapsed time.Duration, correctness float64) string {
	ms := float64(elapsed) / float64(time.Millisecond)
	return fmt.Sprintf("Done with %d queries in elapsed = %.6g milliseconds. Correctness: %.6g", n, ms, correctness)
}
