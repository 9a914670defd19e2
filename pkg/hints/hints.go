// Package hints provides a mechanism for identifying "soft failures" or ignorable errors
// within the system.
//
// During a sync run, some errors (like "nothing to execute" from an empty
// hook list or "lock already held") are not actually failures that require
// retries or alerts; they are simply signals that a step was skipped. This
// package allows producers to "label" these errors as hints, and allows
// consumers to identify them without needing to import specific sentinel
// errors from the producing package.
package hints

import "errors"

// hint labels an underlying error as ignorable while keeping the original
// intact in the chain for errors.Is / errors.As.
type hint struct {
	err error
}

func (h *hint) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}

func (h *hint) IsHint() bool  { return true }
func (h *hint) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hint{err: errors.New(msg)}
}

// Wrap takes an existing error and "promotes" it to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hint{err: err}
}

// IsHint checks if any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is checks if the error is a hint AND matches the target error.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
