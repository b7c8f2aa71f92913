package ota

import (
	"errors"
)

// GitBranch tells which branch of the git flow ran.
type GitBranch int

const (
	GitBranchNone GitBranch = iota
	GitBranchPull
	GitBranchClone
)

func (b GitBranch) String() string {
	switch b {
	case GitBranchPull:
		return "pull"
	case GitBranchClone:
		return "clone"
	default:
		return "none"
	}
}

// Result is the outcome of an orchestrator operation.
// A nil Kind means success. Warnings collects problems that happened after the bundle was committed,
// they never turn a successful activation into a failure.
type Result struct {
	Kind     error
	Detail   string
	Branch   GitBranch
	Warnings []error
	cause    error
}

// Ok reports whether the operation succeeded.
func (r Result) Ok() bool {
	return r.Kind == nil
}

// Err returns the failure as *UpdateError compatible error, nil on success.
func (r Result) Err() error {
	if r.Ok() {
		return nil
	}
	cause := r.cause
	if cause == nil && r.Detail != "" {
		cause = errors.New(r.Detail)
	}
	return NewUpdateError(r.Kind, cause)
}

// Outcome is the metric label of the result.
func (r Result) Outcome() string {
	return KindLabel(r.Kind)
}

func (r *Result) warn(kind error, cause error) {
	r.Warnings = append(r.Warnings, NewUpdateError(kind, cause))
}
