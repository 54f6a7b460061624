package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

// MatMul performs matrix multiplication with the naive triple loop.
// For 2D tensors: (M, K) @ (K, N) -> (M, N)
// It is the reference the blocked product is checked against.
func (cpu *CPUBackend) MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	m, k, n, err := matmulDims("matmul", a, b)
	if err != nil {
		return nil, err
	}

	result, err := cpu.alloc.Alloc(tensor.Shape{m, n})
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}

	matmulNaive(result.Data(), a.Data(), b.Data(), m, k, n)
	return result, nil
}

// MatMulTiled performs matrix multiplication with the blocked algorithm,
// optionally clamping every output element to zero (fused ReLU).
func (cpu *CPUBackend) MatMulTiled(a, b *tensor.Tensor, fuseReLU bool) (*tensor.Tensor, error) {
	m, k, n, err := matmulDims("matmul", a, b)
	if err != nil {
		return nil, err
	}

	result, err := cpu.alloc.Alloc(tensor.Shape{m, n})
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}

	cpu.matmulTiled(result.Data(), a.Data(), b.Data(), m, k, n, fuseReLU)
	return result, nil
}

// matmulDims validates a (M, K) @ (K, N) pair.
func matmulDims(op string, a, b *tensor.Tensor) (m, k, n int, err error) {
	if err := expectRank(op, "lhs", a, 2); err != nil {
		return 0, 0, 0, err
	}
	if err := expectRank(op, "rhs", b, 2); err != nil {
		return 0, 0, 0, err
	}

	m, k = a.Shape()[0], a.Shape()[1]
	kAlt, n := b.Shape()[0], b.Shape()[1]
	if k != kAlt {
		return 0, 0, 0, &tensor.ShapeError{
			Op:      op,
			Operand: "rhs",
			Want:    fmt.Sprintf("%d rows", k),
			Got:     b.Shape(),
		}
	}
	return m, k, n, nil
}

// matmulNaive computes C[i,j] = sum_k A[i,k] * B[k,j].
func matmulNaive(c, a, b []float32, m, k, n int) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			sum := float32(0)
			for kIdx := 0; kIdx < k; kIdx++ {
				sum += a[i*k+kIdx] * b[kIdx*n+j]
			}
			c[i*n+j] = sum
		}
	}
}

// matmulTiled computes C = A @ B (A is m×k, B is k×n) in square tiles of
// width T.
//
// Each output tile is owned by a group of G workers sharing two T×T working
// sets, one per operand. The contraction dimension is walked in phases of T
// columns of A / rows of B:
//
//  1. every worker loads its rows of both operand tiles; loads outside A or
//     B are skipped, not zero-filled
//  2. barrier
//  3. every worker accumulates its rows of the tile, using a shared value
//     only if the output row, output column and contraction index are all in
//     range, so slots left over from a previous phase never reach a sum
//  4. barrier, so the next phase cannot overwrite a tile still being read
//
// After the last phase each worker clamps (if fuseReLU) and stores its
// in-range outputs. Within a tile, worker w owns tile rows w, w+G, w+2G, ...
// Tiles share nothing and run concurrently under cpu.par.
//
// The contraction index increases monotonically for every output, the same
// accumulation order as matmulNaive.
func (cpu *CPUBackend) matmulTiled(c, a, b []float32, m, k, n int, fuseReLU bool) {
	t := cpu.tile
	g := min(cpu.group, t)

	tileRows := (m + t - 1) / t
	tileCols := (n + t - 1) / t
	phases := (k + t - 1) / t

	parallel.For(tileRows*tileCols, func(idx int) {
		rowBase := (idx / tileCols) * t
		colBase := (idx % tileCols) * t

		sharedA := make([]float32, t*t)
		sharedB := make([]float32, t*t)
		acc := make([]float32, t*t)
		barrier := parallel.NewBarrier(g)

		parallel.Group(g, func(w int) {
			for p := 0; p < phases; p++ {
				kBase := p * t

				// Load.
				for r := w; r < t; r += g {
					row := rowBase + r
					bRow := kBase + r
					for cc := 0; cc < t; cc++ {
						if aCol := kBase + cc; row < m && aCol < k {
							sharedA[r*t+cc] = a[row*k+aCol]
						}
						if bCol := colBase + cc; bRow < k && bCol < n {
							sharedB[r*t+cc] = b[bRow*n+bCol]
						}
					}
				}
				barrier.Wait()

				// Accumulate.
				for r := w; r < t; r += g {
					if rowBase+r >= m {
						continue
					}
					for cc := 0; cc < t; cc++ {
						if colBase+cc >= n {
							continue
						}
						sum := acc[r*t+cc]
						for kk := 0; kk < t; kk++ {
							if kBase+kk < k {
								sum += sharedA[r*t+kk] * sharedB[kk*t+cc]
							}
						}
						acc[r*t+cc] = sum
					}
				}
				barrier.Wait()
			}

			// Store.
			for r := w; r < t; r += g {
				row := rowBase + r
				if row >= m {
					continue
				}
				for cc := 0; cc < t; cc++ {
					col := colBase + cc
					if col >= n {
						continue
					}
					v := acc[r*t+cc]
					if fuseReLU && v < 0 {
						v = 0
					}
					c[row*n+col] = v
				}
			}
		})
	}, cpu.par)
}
