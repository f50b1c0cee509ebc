package flagstore

import (
	"errors"
	"fmt"
)

// ErrorCode classifies errors returned by the data store.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	// TransactionFailure means a batch of an Init could not be committed. Batches committed
	// before it are not rolled back.
	TransactionFailure
	// ConflictRetriesExhausted means Upsert lost the compare-and-swap race more times than
	// its retry policy allows.
	ConflictRetriesExhausted
	// DecodeFailure means a stored value could not be decoded into an Item.
	DecodeFailure
	// UnknownDataKind means a DataKind outside of the registered set was used.
	UnknownDataKind
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case TransactionFailure:
		return "TransactionFailure"
	case ConflictRetriesExhausted:
		return "ConflictRetriesExhausted"
	case DecodeFailure:
		return "DecodeFailure"
	case UnknownDataKind:
		return "UnknownDataKind"
	default:
		return "Unknown"
	}
}

// Error is the data store custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %v, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// BatchFailure is the UserData of a TransactionFailure error.
type BatchFailure struct {
	// Batch is the zero based index of the batch that failed.
	Batch int
	// Committed is the number of batches committed before the failure.
	Committed int
	// Total is the number of batches the operation was split into.
	Total int
}

func (b BatchFailure) String() string {
	return fmt.Sprintf("batch %d of %d failed, %d committed", b.Batch+1, b.Total, b.Committed)
}

// ErrorCodeOf returns the code of err if it is (or wraps) an Error, Unknown otherwise.
func ErrorCodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
