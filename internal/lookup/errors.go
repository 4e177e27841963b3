package lookup

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a table declaration that is missing a required
	// parameter or collides with an existing table name.
	ErrConfig = errors.New("invalid lookup table config")

	// ErrFileNotFound is returned when the table file cannot be stat'ed or opened.
	ErrFileNotFound = errors.New("lookup table file not found")

	// ErrRead is returned on a short or failed read of the table file.
	ErrRead = errors.New("lookup table file read error")

	// ErrParse is returned when the table file is not a single JSON object.
	ErrParse = errors.New("lookup table json parse error")

	// ErrValidation is returned when a parsed document cannot form a table.
	ErrValidation = errors.New("lookup table validation failed")

	// ErrInternal signals a broken builder invariant, never bad input.
	ErrInternal = errors.New("lookup table internal error")
)

// NonContiguousError reports a gap between two consecutive sorted indices
// of an array table.
type NonContiguousError struct {
	Table string
	Prev  uint32
	Next  uint32
}

func (e *NonContiguousError) Error() string {
	return fmt.Sprintf("'array' lookup table %q has non-contiguous values between index %d and %d",
		e.Table, e.Prev, e.Next)
}

func (e *NonContiguousError) Is(target error) bool { return target == ErrValidation }

// DuplicateKeyError reports a key that appears on more than one row.
type DuplicateKeyError struct {
	Table string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("lookup table %q has duplicate index %q", e.Table, e.Key)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrValidation }

// RowError reports a malformed row of the "table" array. Row is zero-based.
type RowError struct {
	Table  string
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("lookup table %q row %d: %s", e.Table, e.Row, e.Reason)
}

func (e *RowError) Is(target error) bool { return target == ErrValidation }

// TableError wraps a failure with the table it concerns. Every error the
// Registry and Ref hand to callers is a *TableError.
type TableError struct {
	Op   string // "load" or "reload"
	Name string
	File string
	Err  error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("%s lookup table %q from file %q: %v", e.Op, e.Name, e.File, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }
