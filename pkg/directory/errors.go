package directory

import (
	"errors"
	"fmt"
	"strings"
)

type Operation string

const (
	OpConnect Operation = "connect"
	OpBind    Operation = "bind"
	OpSearch  Operation = "search"
)

// Category groups directory failures by cause.
type Category string

const (
	CategoryConnection     Category = "connection"
	CategoryAuthentication Category = "authentication"
	CategoryPermission     Category = "permission"
	CategoryNotFound       Category = "not_found"
	CategoryValidation     Category = "validation"
	CategoryServer         Category = "server"
	CategoryUnknown        Category = "unknown"
)

// Error is a connect, bind or search failure. It is never retried.
type Error struct {
	Op       Operation
	Server   string
	Code     uint16
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var parts []string

	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Op, e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Op))
	}

	if e.Server != "" {
		parts = append(parts, fmt.Sprintf("server: %s", e.Server))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, " - ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError reports whether err carries a directory failure.
func AsError(err error) (*Error, bool) {
	var dirErr *Error
	if errors.As(err, &dirErr) {
		return dirErr, true
	}
	return nil, false
}
