package cpu

import "github.com/born-ml/lenet/internal/tensor"

// Argmax returns, for every row of a 2D tensor, the column index of its
// maximum. Ties resolve to the lowest index.
//
// Used both to turn final scores into predicted labels and to turn one-hot
// reference labels into integer ground truth.
func (cpu *CPUBackend) Argmax(x *tensor.Tensor) ([]int32, error) {
	if err := expectRank("argmax", "input", x, 2); err != nil {
		return nil, err
	}

	rows, cols := x.Shape()[0], x.Shape()[1]
	result := make([]int32, rows)
	argmaxRows(x.Data(), result, rows, cols)
	return result, nil
}

func argmaxRows(data []float32, result []int32, rows, cols int) {
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]

		maxVal := row[0]
		maxIdx := int32(0)
		for j := 1; j < cols; j++ {
			if row[j] > maxVal {
				maxVal = row[j]
				//nolint:gosec // G115: Dimension size < 2^31, safe conversion to int32.
				maxIdx = int32(j)
			}
		}
		result[i] = maxIdx
	}
}
