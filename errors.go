// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleOperator is returned by Apply when the operator changed after
	// the solver was numerically initialized.
	ErrStaleOperator = errors.New("solver: operator modified since InitNumeric")

	// ErrNotInitialized is returned by Apply when InitNumeric has not been
	// called.
	ErrNotInitialized = errors.New("solver: not initialized")

	// ErrDimensionMismatch is returned when vector lengths do not match
	// the operator.
	ErrDimensionMismatch = errors.New("solver: dimension mismatch")
)

// SolverError is a solve-time failure of a named solver, for example a
// breakdown in a Krylov recurrence or the failure of an inner solver. The
// caller may recover by choosing a different solver or preconditioner.
type SolverError struct {
	Solver string
	Iter   int
	Err    error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("solver: %s failed at iteration %d: %v", e.Solver, e.Iter, e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }

// SingularMatrixError reports a numerically singular matrix found during a
// factorization. The factorization is unusable until the solver is
// re-initialized with a different operator.
type SingularMatrixError struct {
	Solver string
	// Row is the row where a zero pivot was found, or -1 if unknown.
	Row int
	// Cond is the estimated condition number, or 0 if unknown.
	Cond float64
}

func (e *SingularMatrixError) Error() string {
	switch {
	case e.Row >= 0:
		return fmt.Sprintf("solver: %s: singular matrix: zero pivot in row %d", e.Solver, e.Row)
	case e.Cond > 0:
		return fmt.Sprintf("solver: %s: singular matrix: condition number %.3g", e.Solver, e.Cond)
	}
	return fmt.Sprintf("solver: %s: singular matrix", e.Solver)
}

// InvalidMatrixStructureError reports a structural mismatch between a
// solver and its operator detected during initialization.
type InvalidMatrixStructureError struct {
	Solver string
	Reason string
}

func (e *InvalidMatrixStructureError) Error() string {
	return fmt.Sprintf("solver: %s: invalid matrix structure: %s", e.Solver, e.Reason)
}

// VankaFactorError reports the failure to factorize the local system of a
// Vanka patch.
type VankaFactorError struct {
	Patch int
	Err   error
}

func (e *VankaFactorError) Error() string {
	return fmt.Sprintf("solver: Vanka: factorization of patch %d failed: %v", e.Patch, e.Err)
}

func (e *VankaFactorError) Unwrap() error { return e.Err }

// ConfigError reports an invalid or unrecognized configuration entry.
type ConfigError struct {
	Section string
	Key     string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("solver: config key %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("solver: config section %q key %q: %s", e.Section, e.Key, e.Reason)
}

// abort wraps err as the cause of an aborted Apply of the named solver.
// Errors that already identify a solver are passed through unchanged.
func abort(name string, iter int, err error) error {
	var se *SolverError
	if errors.As(err, &se) && se.Solver == name {
		return err
	}
	return &SolverError{Solver: name, Iter: iter, Err: err}
}
