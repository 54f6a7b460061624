package loader

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/lenet/internal/nn"
	"github.com/born-ml/lenet/internal/tensor"
)

// IDX magic numbers: unsigned bytes, 3 and 1 dimensions.
const (
	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801
)

// LoadIDX reads test data from an MNIST-style pair of IDX files, e.g.
// t10k-images-idx3-ubyte and t10k-labels-idx1-ubyte. Files ending in ".gz"
// are decompressed on the fly.
//
// Pixels are scaled to [0, 1]; labels are expanded to one-hot rows of
// cfg.NumDigits. Batch size disagreement fails with ErrBatchSizeMismatch as
// in LoadTestData.
func LoadIDX(imagesPath, labelsPath string, cfg *nn.Config, batchSize int) (*Dataset, error) {
	pixels, shape, err := readIDX(imagesPath, idxImagesMagic)
	if err != nil {
		return nil, fmt.Errorf("load idx images: %w", err)
	}
	labels, labelShape, err := readIDX(labelsPath, idxLabelsMagic)
	if err != nil {
		return nil, fmt.Errorf("load idx labels: %w", err)
	}

	n := shape[0]
	x := tensor.Shape{n, shape[1], shape[2], 1}
	y := tensor.Shape{labelShape[0], cfg.NumDigits}
	if err := checkDatasetShapes(cfg, x, y, batchSize); err != nil {
		return nil, fmt.Errorf("load idx: %w", err)
	}

	alloc := tensor.NewAllocator(0)
	images, err := alloc.Alloc(x)
	if err != nil {
		return nil, fmt.Errorf("load idx: %w", err)
	}
	for i, p := range pixels {
		images.Data()[i] = float32(p) / 255
	}

	onehot, err := alloc.Alloc(y)
	if err != nil {
		images.Release()
		return nil, fmt.Errorf("load idx: %w", err)
	}
	for i, l := range labels {
		if int(l) >= cfg.NumDigits {
			images.Release()
			onehot.Release()
			return nil, fmt.Errorf("load idx: label %d at row %d out of range [0, %d)", l, i, cfg.NumDigits)
		}
		onehot.Data()[i*cfg.NumDigits+int(l)] = 1
	}

	return &Dataset{X: images, Y: onehot}, nil
}

// readIDX reads an unsigned-byte IDX file with the given magic number and
// returns its payload and dimensions.
//
// IDX layout (big-endian):
//
//	magic number: 4 bytes (0x0803 images, 0x0801 labels)
//	dimension sizes: 4 bytes each (images: count, rows, cols; labels: count)
//	data: unsigned bytes
func readIDX(path string, magic uint32) ([]byte, []int, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for data loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var r io.Reader = bufio.NewReader(file)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read magic: %w", path, err)
	}
	if got != magic {
		return nil, nil, fmt.Errorf("%s: %w: got %#x, want %#x", path, ErrInvalidMagic, got, magic)
	}

	dims := make([]uint32, magic&0xff)
	if err := binary.Read(r, binary.BigEndian, dims); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read dimensions: %w", path, err)
	}

	shape := make([]int, len(dims))
	size := 1
	for i, d := range dims {
		if d == 0 || d > 1<<24 {
			return nil, nil, fmt.Errorf("%s: invalid dimension %d", path, d)
		}
		shape[i] = int(d)
		size *= int(d)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read data: %w", path, err)
	}
	return data, shape, nil
}

// WriteIDX writes an unsigned-byte IDX file, gzip-compressed if path ends
// in ".gz". It is the inverse of readIDX and is used for fixtures.
func WriteIDX(path string, data []byte, shape []int) error {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(data) || len(shape) == 0 || len(shape) > 3 {
		return fmt.Errorf("write idx: %d bytes do not fill shape %v", len(data), shape)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for data saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write idx: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	var w io.Writer = buf
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(buf)
		w = gz
	}

	header := make([]uint32, 0, len(shape)+1)
	header = append(header, 0x0800|uint32(len(shape))) //nolint:gosec // G115: at most 3 dimensions.
	for _, d := range shape {
		header = append(header, uint32(d)) //nolint:gosec // G115: IDX dimensions are 32-bit.
	}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return fmt.Errorf("write idx: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write idx: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("write idx: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write idx: %w", err)
	}
	return file.Close()
}
