package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/tensor"
)

// UnrollFilter rewrites a K×K×C×M filter into an M×(C·K·K) matrix:
//
//	unrolled[m, c·K·K + p·K + q] = W[p, q, c, m]
//
// The result is shared by every sample of a batch.
func (cpu *CPUBackend) UnrollFilter(w *tensor.Tensor) (*tensor.Tensor, error) {
	if err := expectRank("unroll_filter", "filter", w, 4); err != nil {
		return nil, err
	}
	ws := w.Shape()
	kh, kw, c, m := ws[0], ws[1], ws[2], ws[3]

	out, err := cpu.alloc.Alloc(tensor.Shape{m, c * kh * kw})
	if err != nil {
		return nil, fmt.Errorf("unroll_filter: %w", err)
	}
	unrollFilter(out.Data(), w.Data(), kh, kw, c, m)
	return out, nil
}

func unrollFilter(dst, w []float32, kh, kw, c, m int) {
	rowLen := c * kh * kw
	for p := 0; p < kh; p++ {
		for q := 0; q < kw; q++ {
			for ch := 0; ch < c; ch++ {
				col := ch*kh*kw + p*kw + q
				src := ((p*kw+q)*c + ch) * m
				for mm := 0; mm < m; mm++ {
					dst[mm*rowLen+col] = w[src+mm]
				}
			}
		}
	}
}

// unrollInput rewrites the receptive-field patches of one H×W×C image into a
// (C·K·K)×(H_out·W_out) matrix:
//
//	dst[c·K·K + p·K + q, out_h·W_out + out_w] = x[out_h+p, out_w+q, c]
//
// x is the slice of a single sample and w its width.
func unrollInput(dst, x []float32, w, c, kh, kw, hOut, wOut int) {
	cols := hOut * wOut
	for ch := 0; ch < c; ch++ {
		for p := 0; p < kh; p++ {
			for q := 0; q < kw; q++ {
				row := (ch*kh*kw + p*kw + q) * cols
				for outH := 0; outH < hOut; outH++ {
					src := ((outH+p)*w + q) * c
					for outW := 0; outW < wOut; outW++ {
						dst[row+outH*wOut+outW] = x[src+outW*c+ch]
					}
				}
			}
		}
	}
}

// reroll restores one sample's M×(H_out·W_out) output matrix into the
// channel-last H_out×W_out×M layout:
//
//	y[out_h, out_w, m] = yu[m, out_h·W_out + out_w]
func reroll(y, yu []float32, hOut, wOut, m int) {
	cols := hOut * wOut
	for mm := 0; mm < m; mm++ {
		row := yu[mm*cols : (mm+1)*cols]
		for pos, v := range row {
			y[pos*m+mm] = v
		}
	}
}
