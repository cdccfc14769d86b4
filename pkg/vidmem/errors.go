package vidmem

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch matches any *DimensionMismatchError via errors.Is.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIDCollision is returned when a generated chunk id is already taken.
	ErrIDCollision = errors.New("chunk id collision")

	// ErrEmptyVector is returned when storing a zero-length vector.
	ErrEmptyVector = errors.New("empty vector")

	// ErrEmptyQuery is returned when searching with blank query text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidSidecar is returned when a sidecar file cannot be trusted.
	ErrInvalidSidecar = errors.New("invalid sidecar")

	// ErrPreflightFailed is returned when a sample frame does not survive the
	// configured codec and container.
	ErrPreflightFailed = errors.New("preflight failed")
)

// DimensionMismatchError indicates a vector whose length differs from the
// established store dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// OffsetError reports a persisted vector offset that does not address a
// whole vector.
type OffsetError struct {
	ID     string
	Offset int
	Len    int
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("vector %s: offset %d out of range for buffer of %d", e.ID, e.Offset, e.Len)
}
