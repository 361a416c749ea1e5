package policy

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of Enable or Disable.
type Code string

const (
	CodeOK                  Code = "OK"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyEnabled      Code = "ALREADY_ENABLED"
	CodeAlreadyDisabled     Code = "ALREADY_DISABLED"
	CodeUnmetDependencies   Code = "UNMET_DEPENDENCIES"
	CodeHasActiveDependents Code = "HAS_ACTIVE_DEPENDENTS"
)

var (
	ErrNotFound            = errors.New("module not found")
	ErrAlreadyEnabled      = errors.New("module already enabled")
	ErrAlreadyDisabled     = errors.New("module already disabled")
	ErrUnmetDependencies   = errors.New("unmet dependencies")
	ErrHasActiveDependents = errors.New("module has active dependents")
)

// Result is the outcome of a toggle. Policy violations are values, not
// errors: callers branch on OK. IDs carries the offending module ids for
// UnmetDependencies and HasActiveDependents.
type Result struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message"`
	Code    Code     `json:"code"`
	IDs     []string `json:"ids,omitempty"`
}

// Err returns nil for a successful result, otherwise the sentinel matching
// Code wrapped with the message.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	var sentinel error
	switch r.Code {
	case CodeNotFound:
		sentinel = ErrNotFound
	case CodeAlreadyEnabled:
		sentinel = ErrAlreadyEnabled
	case CodeAlreadyDisabled:
		sentinel = ErrAlreadyDisabled
	case CodeUnmetDependencies:
		sentinel = ErrUnmetDependencies
	case CodeHasActiveDependents:
		sentinel = ErrHasActiveDependents
	default:
		return errors.New(r.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, r.Message)
}

func success(msg string) Result {
	return Result{OK: true, Message: msg, Code: CodeOK}
}

func failure(code Code, msg string, ids ...string) Result {
	return Result{Message: msg, Code: code, IDs: ids}
}
