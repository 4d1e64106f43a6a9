package docstore

import (
	"errors"
	"fmt"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("document not found")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrDuplicateID        = errors.New("duplicate document id")
)

const (
	OpPing            = "ping"
	OpFind            = "find"
	OpInsert          = "insert"
	OpUpdate          = "update"
	OpRemove          = "remove"
	OpClearCollection = "clearCollection"
	OpBulkInsert      = "bulkInsert"
)

// OpError wraps a failure of a single store operation.
type OpError struct {
	Op         string
	Collection string
	Err        error
}

func (e *OpError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("docstore %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("docstore %s [%s]: %s", e.Op, e.Collection, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Mutating reports whether the failed operation would have changed persisted state.
func (e *OpError) Mutating() bool {
	switch e.Op {
	case OpFind, OpPing:
		return false
	default:
		return true
	}
}

// WrapOpError returns nil for a nil err, and never wraps an OpError twice.
func WrapOpError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Collection: collection, Err: err}
}

func IsReadFailure(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && !opErr.Mutating()
}

func IsWriteFailure(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Mutating()
}

func CheckCollection(op, collection string) error {
	if !IsCollection(collection) {
		return &OpError{
			Op:         op,
			Collection: collection,
			Err:        fmt.Errorf("%w: %s", ErrCollectionNotFound, collection),
		}
	}
	return nil
}

// Error codes carried by the remote backends' wire formats.
const (
	CodeCollectionNotFound = "collection_not_found"
	CodeNotFound           = "not_found"
	CodeBadRequest         = "bad_request"
	CodeDuplicateID        = "duplicate_id"
	CodeInternal           = "internal"
)

func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCollectionNotFound):
		return CodeCollectionNotFound
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidDocument):
		return CodeBadRequest
	case errors.Is(err, ErrDuplicateID):
		return CodeDuplicateID
	default:
		return CodeInternal
	}
}

// ErrorFromCode is the client side counterpart of ErrorCode.
func ErrorFromCode(code, message string) error {
	switch code {
	case "":
		return nil
	case CodeCollectionNotFound:
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, message)
	case CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case CodeBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidDocument, message)
	case CodeDuplicateID:
		return fmt.Errorf("%w: %s", ErrDuplicateID, message)
	default:
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, message)
	}
}
