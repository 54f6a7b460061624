package tensor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrOutOfMemory   = errors.New("out of memory")
)

// ShapeError provides detailed information about an operand whose shape
// disagrees with what an operator expects. It unwraps to ErrShapeMismatch.
type ShapeError struct {
	Op      string // Operator that rejected the operand (e.g., "conv2d")
	Operand string // Operand name (e.g., "filter")
	Want    string // Expected shape or extent
	Got     Shape  // Actual shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Operand != "" {
		return fmt.Sprintf("%s: %s: %s: want %s, got %v", e.Op, ErrShapeMismatch, e.Operand, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: %s: want %s, got %v", e.Op, ErrShapeMismatch, e.Want, e.Got)
}

// Unwrap makes errors.Is(err, ErrShapeMismatch) hold.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
