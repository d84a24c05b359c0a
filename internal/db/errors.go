package db

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidOffset is returned for offsets that never addressed a block.
	ErrInvalidOffset = errors.New("invalid record offset")
	// ErrStaleRecord is returned for offsets whose block was freed, or freed
	// and handed to a later allocation.
	ErrStaleRecord = errors.New("stale record")
	// ErrBadHeader is returned when an existing store is not a database of
	// this version.
	ErrBadHeader = errors.New("bad database header")
	// ErrTooLarge is returned for allocations that do not fit in one chunk.
	ErrTooLarge = errors.New("allocation exceeds chunk size")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("database closed")
)

// StorageFault reports an I/O failure of the backing store. It is never
// recovered inside the database; the structural update that hit it is aborted.
type StorageFault struct {
	Op     string
	Offset int64
	Err    error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s at %d: %v", e.Op, e.Offset, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// Cause returns the underlying I/O error.
func (e *StorageFault) Cause() error { return errors.Cause(e.Err) }

func fault(op string, off int64, err error) error {
	return &StorageFault{Op: op, Offset: off, Err: errors.WithStack(err)}
}

// IsStorageFault reports whether err carries a StorageFault.
func IsStorageFault(err error) bool {
	var sf *StorageFault
	return errors.As(err, &sf)
}

func invalidOffset(off Offset) error {
	return fmt.Errorf("%w: %v", ErrInvalidOffset, off)
}

func staleRecord(off Offset) error {
	return fmt.Errorf("%w: %v", ErrStaleRecord, off)
}
