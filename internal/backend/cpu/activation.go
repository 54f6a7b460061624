package cpu

import "github.com/born-ml/lenet/internal/tensor"

// ReLU clamps every element of x to zero in place and returns x.
// Works on tensors of any rank.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor) *tensor.Tensor {
	relu(x.Data())
	return x
}

func relu(data []float32) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}
