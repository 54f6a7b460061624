package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

// convDims holds the extents of one valid-mode convolution.
type convDims struct {
	N, H, W, C   int // input
	KH, KW, M    int // filter
	HOut, WOut   int // output spatial extent
	outputShape  tensor.Shape
	unrolledRows int // C·KH·KW
}

// convShapes validates input [N,H,W,C] against filter [KH,KW,C,M] and
// derives the output extent (H-KH+1)×(W-KW+1).
func convShapes(op string, x, w *tensor.Tensor) (convDims, error) {
	if err := expectRank(op, "input", x, 4); err != nil {
		return convDims{}, err
	}
	if err := expectRank(op, "filter", w, 4); err != nil {
		return convDims{}, err
	}

	xs, ws := x.Shape(), w.Shape()
	d := convDims{
		N: xs[0], H: xs[1], W: xs[2], C: xs[3],
		KH: ws[0], KW: ws[1], M: ws[3],
	}

	if ws[2] != d.C {
		return convDims{}, &tensor.ShapeError{
			Op:      op,
			Operand: "filter",
			Want:    fmt.Sprintf("%d input channels", d.C),
			Got:     ws,
		}
	}
	if d.KH > d.H || d.KW > d.W {
		return convDims{}, &tensor.ShapeError{
			Op:      op,
			Operand: "filter",
			Want:    fmt.Sprintf("at most %d×%d spatial extent", d.H, d.W),
			Got:     ws,
		}
	}

	d.HOut = d.H - d.KH + 1
	d.WOut = d.W - d.KW + 1
	d.outputShape = tensor.Shape{d.N, d.HOut, d.WOut, d.M}
	d.unrolledRows = d.C * d.KH * d.KW
	return d, nil
}

// ConvDirect performs valid-mode 2D convolution with direct nested loops.
//
// Input shape:  [N, H, W, C]
// Filter shape: [K_h, K_w, C, M]
// Output shape: [N, H-K_h+1, W-K_w+1, M]
//
//	Y[n,h,w,m] = sum_p sum_q sum_c X[n,h+p,w+q,c] * W[p,q,c,m]
//
// This is the reference form; ConvUnrolled must agree with it.
func (cpu *CPUBackend) ConvDirect(x, w *tensor.Tensor) (*tensor.Tensor, error) {
	d, err := convShapes("conv2d", x, w)
	if err != nil {
		return nil, err
	}

	output, err := cpu.alloc.Alloc(d.outputShape)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	xData, wData, yData := x.Data(), w.Data(), output.Data()

	// Each (n, m) pair owns a disjoint set of outputs.
	parallel.ForBatch(d.N, d.M, func(n, m int) {
		for h := 0; h < d.HOut; h++ {
			for ow := 0; ow < d.WOut; ow++ {
				yOffset := ((n*d.HOut+h)*d.WOut+ow)*d.M + m
				for p := 0; p < d.KH; p++ {
					for q := 0; q < d.KW; q++ {
						xBase := ((n*d.H+h+p)*d.W + ow + q) * d.C
						wBase := (p*d.KW + q) * d.C * d.M
						for c := 0; c < d.C; c++ {
							yData[yOffset] += xData[xBase+c] * wData[wBase+c*d.M+m]
						}
					}
				}
			}
		}
	}, cpu.par)

	return output, nil
}

// ConvUnrolled performs the same convolution as ConvDirect by unrolling it
// into a dense matrix product.
//
// Algorithm:
//  1. UnrollFilter: [K_h, K_w, C, M] -> [M, C*K_h*K_w] (once per call)
//  2. For each sample n:
//     a. unrollInput: [H, W, C] -> [C*K_h*K_w, H_out*W_out]
//     b. blocked matmul: [M, C*K_h*K_w] @ [C*K_h*K_w, H_out*W_out] -> [M, H_out*W_out],
//     clamped to zero when fuseReLU is set
//     c. reroll: [M, H_out*W_out] -> [H_out, W_out, M] into sample n of the output
//
// The unrolled buffers are reused across samples and released before
// returning, on error paths included.
func (cpu *CPUBackend) ConvUnrolled(x, w *tensor.Tensor, fuseReLU bool) (*tensor.Tensor, error) {
	d, err := convShapes("conv2d", x, w)
	if err != nil {
		return nil, err
	}

	filter, err := cpu.UnrollFilter(w)
	if err != nil {
		return nil, err
	}
	defer filter.Release()

	cols := d.HOut * d.WOut
	unrolled, err := cpu.alloc.Alloc(tensor.Shape{d.unrolledRows, cols})
	if err != nil {
		return nil, fmt.Errorf("conv2d: unroll: %w", err)
	}
	defer unrolled.Release()

	product, err := cpu.alloc.Alloc(tensor.Shape{d.M, cols})
	if err != nil {
		return nil, fmt.Errorf("conv2d: unrolled output: %w", err)
	}
	defer product.Release()

	output, err := cpu.alloc.Alloc(d.outputShape)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	xData, yData := x.Data(), output.Data()
	inStride := d.H * d.W * d.C
	outStride := cols * d.M

	for n := 0; n < d.N; n++ {
		unrollInput(unrolled.Data(), xData[n*inStride:(n+1)*inStride], d.W, d.C, d.KH, d.KW, d.HOut, d.WOut)
		cpu.matmulTiled(product.Data(), filter.Data(), unrolled.Data(), d.M, d.unrolledRows, cols, fuseReLU)
		reroll(yData[n*outStride:(n+1)*outStride], product.Data(), d.HOut, d.WOut, d.M)
	}

	return output, nil
}
