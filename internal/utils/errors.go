package utils

import "fmt"

// AppError tags a failure with the operation that raised it and, when the
// operation was acting on a stored blob, the key involved.
type AppError struct {
	Op  string
	Key string
	Err error
}

func (e *AppError) Error() string {
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %q", e.Op, e.Key)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// OpError wraps err with the failing operation.
func OpError(op string, err error) error {
	return &AppError{Op: op, Err: err}
}

// KeyError wraps err with the failing operation and the blob key it was
// acting on.
func KeyError(op, key string, err error) error {
	return &AppError{Op: op, Key: key, Err: err}
}
