package csvexport

import (
	"errors"
	"fmt"
)

// ErrStorage is the kind of every export failure.
var ErrStorage = errors.New("storage error")

// Operations reported by StorageError.Op.
const (
	OpMkdir  = "mkdir"
	OpCreate = "create"
	OpWrite  = "write"
	OpRename = "rename"
)

// StorageError reports a failed filesystem step while writing an artifact.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("csv export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as this error's kind.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
