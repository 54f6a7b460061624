package loader

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 1024
	MaxTensorNameLen = 4096
)

// tensorSpan is the byte range of one tensor inside the data section.
type tensorSpan struct {
	name        string
	offset, end int64
}

// validateTensorName rejects names that could not have been written by
// WriteSafeTensors or that try to smuggle path components.
func validateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.Contains(name, ".."), strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains a path component or null byte"}
	}
	return nil
}

// validateSpans checks for negative, out-of-bounds and overlapping tensor
// regions in a data section of dataSize bytes.
func validateSpans(spans []tensorSpan, dataSize int64) error {
	sorted := make([]tensorSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].offset < sorted[j].offset
	})

	for i, s := range sorted {
		if s.offset < 0 || s.end < s.offset {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("invalid data offsets [%d, %d]", s.offset, s.end),
			}
		}
		if s.end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("end %d > data size %d", s.end, dataSize),
			}
		}
		if i < len(sorted)-1 && s.end > sorted[i+1].offset {
			next := sorted[i+1]
			return &ValidationError{
				Err:     ErrOffsetOverlap,
				Tensor:  s.name,
				Tensor2: next.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.offset, s.end, next.offset, next.end),
			}
		}
	}
	return nil
}
