package ledger

import (
	"errors"
	"fmt"
)

var ErrStorageIO = errors.New("storage i/o error")

// StorageIOError wraps a failed read or write of the backing file.
type StorageIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() []error {
	return []error{ErrStorageIO, e.Err}
}

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageIOError{Op: op, Path: path, Err: err}
}
