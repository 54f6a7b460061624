package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

// PoolRemainder decides what average pooling does with border rows and
// columns when the spatial extent is not a multiple of the pool factor.
type PoolRemainder int

const (
	// PoolTruncate drops the leftover border: the output extent is H/f by
	// integer division.
	PoolTruncate PoolRemainder = iota
	// PoolStrict rejects inputs whose extent is not a multiple of f.
	PoolStrict
	// PoolPadAverage keeps partial windows (output extent ceil(H/f)) and
	// averages them over the cells they actually cover.
	PoolPadAverage
)

// String returns the policy name used on the command line.
func (r PoolRemainder) String() string {
	switch r {
	case PoolTruncate:
		return "truncate"
	case PoolStrict:
		return "strict"
	case PoolPadAverage:
		return "pad"
	default:
		return fmt.Sprintf("PoolRemainder(%d)", int(r))
	}
}

// ParsePoolRemainder maps a policy name back to its value.
func ParsePoolRemainder(s string) (PoolRemainder, error) {
	switch s {
	case "truncate":
		return PoolTruncate, nil
	case "strict":
		return PoolStrict, nil
	case "pad":
		return PoolPadAverage, nil
	default:
		return 0, fmt.Errorf("unknown pool remainder policy %q (want truncate, strict or pad)", s)
	}
}

// PoolExtent returns the pooled extent of an input extent under policy r.
// It never fails; PoolStrict divisibility is checked by AvgPool2D.
func PoolExtent(extent, factor int, r PoolRemainder) int {
	if r == PoolPadAverage {
		return (extent + factor - 1) / factor
	}
	return extent / factor
}

// AvgPool2D performs non-overlapping 2D average pooling.
//
// Input shape:  [N, H, W, C]
// Output shape: [N, H/f, W/f, C]
//
//	Y[n,h,w,c] = sum_p sum_q X[n, f*h+p, f*w+q, c] / f²
//
// Example (f=2):
//
//	Input: [[1,2,3,4],    Output: [[3.5,5.5],
//	        [5,6,7,8],             [11.5,13.5]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) AvgPool2D(x *tensor.Tensor, factor int, remainder PoolRemainder) (*tensor.Tensor, error) {
	if err := expectRank("avgpool2d", "input", x, 4); err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, fmt.Errorf("avgpool2d: invalid pool factor %d", factor)
	}

	xs := x.Shape()
	N, H, W, C := xs[0], xs[1], xs[2], xs[3]

	if remainder == PoolStrict && (H%factor != 0 || W%factor != 0) {
		return nil, &tensor.ShapeError{
			Op:      "avgpool2d",
			Operand: "input",
			Want:    fmt.Sprintf("height and width divisible by %d", factor),
			Got:     xs,
		}
	}

	HOut := PoolExtent(H, factor, remainder)
	WOut := PoolExtent(W, factor, remainder)
	if HOut <= 0 || WOut <= 0 {
		return nil, &tensor.ShapeError{
			Op:      "avgpool2d",
			Operand: "input",
			Want:    fmt.Sprintf("height and width >= %d", factor),
			Got:     xs,
		}
	}

	output, err := cpu.alloc.Alloc(tensor.Shape{N, HOut, WOut, C})
	if err != nil {
		return nil, fmt.Errorf("avgpool2d: %w", err)
	}

	xData, yData := x.Data(), output.Data()
	area := float32(factor * factor)

	parallel.For(N, func(n int) {
		for h := 0; h < HOut; h++ {
			for w := 0; w < WOut; w++ {
				yBase := ((n*HOut+h)*WOut + w) * C

				// Window clipped to the input; only PoolPadAverage can clip.
				hEnd := min(factor*h+factor, H)
				wEnd := min(factor*w+factor, W)
				divisor := area
				if remainder == PoolPadAverage {
					divisor = float32((hEnd - factor*h) * (wEnd - factor*w))
				}

				for ih := factor * h; ih < hEnd; ih++ {
					for iw := factor * w; iw < wEnd; iw++ {
						xBase := ((n*H+ih)*W + iw) * C
						for c := 0; c < C; c++ {
							yData[yBase+c] += xData[xBase+c] / divisor
						}
					}
				}
			}
		}
	}, cpu.par)

	return output, nil
}
