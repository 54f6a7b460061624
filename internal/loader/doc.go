// Package loader reads and writes the network's model and test-data files.
//
// Both are SafeTensors files:
//   - model:    conv1 [5,5,1,32], conv2 [5,5,32,64], fc1 [1024,128], fc2 [128,10]
//   - testdata: x [N,28,28,1] images, y [N,10] one-hot reference labels
//
// F32 tensors are loaded directly; F16, BF16 and F64 tensors are converted
// to float32 on load. Writers always emit F32 and record a SHA-256 of the
// data section in the header metadata, which readers verify when present.
//
// Test data can also be read from the IDX files of the MNIST distribution
// (optionally gzip-compressed), see LoadIDX.
//
// Example:
//
//	weights, err := loader.LoadWeights("model.safetensors", cfg)
//	if err != nil {
//	    return err
//	}
//	data, err := loader.LoadTestData("testdata.safetensors", cfg, 10000)
//	if errors.Is(err, loader.ErrBatchSizeMismatch) {
//	    ...
//	}
package loader
