package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

// FullyConnected computes a dense layer without bias:
//
//	Y[i,j] = sum_k X[i,k] * W[k,j]
//
// Input shape:  [rows, K]
// Weight shape: [K, J]
// Output shape: [rows, J]
//
// When fuseReLU is set, outputs are clamped to zero as they are written.
func (cpu *CPUBackend) FullyConnected(x, w *tensor.Tensor, fuseReLU bool) (*tensor.Tensor, error) {
	rows, k, j, err := matmulDims("fully_connected", x, w)
	if err != nil {
		return nil, err
	}

	output, err := cpu.alloc.Alloc(tensor.Shape{rows, j})
	if err != nil {
		return nil, fmt.Errorf("fully_connected: %w", err)
	}

	xData, wData, yData := x.Data(), w.Data(), output.Data()

	parallel.For(rows, func(i int) {
		xRow := xData[i*k : (i+1)*k]
		for col := 0; col < j; col++ {
			sum := float32(0)
			for kIdx, v := range xRow {
				sum += v * wData[kIdx*j+col]
			}
			if fuseReLU && sum < 0 {
				sum = 0
			}
			yData[i*j+col] = sum
		}
	}, cpu.par)

	return output, nil
}
