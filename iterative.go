// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iterative provides the conjugate gradient method for symmetric
// positive definite linear systems, written once against the Backend vector
// algebra so that the same recurrence runs on local slices or on a pool of
// distributed workers.
package iterative

import (
	"errors"
	"time"
)

// ErrIterationLimit is returned when Settings.MaxIterations iterations did
// not reach the requested tolerance.
var ErrIterationLimit = errors.New("iterative: iteration limit reached")

// DefaultTolerance is the relative residual tolerance used when
// Settings.Tolerance is zero.
const DefaultTolerance = 1e-10

// Backend is the vector algebra the conjugate gradient recurrence is written
// in. All vectors passed to one call have the same length; a backend given
// vectors of mismatched length leaves its outputs unchanged.
//
// Every method is synchronous: when it returns, its outputs are complete.
type Backend interface {
	// Sum stores a+b into dst.
	Sum(dst, a, b []float64) error

	// Swap exchanges the contents of a and b.
	Swap(a, b []float64) error

	// Scale stores alpha*a into dst.
	Scale(dst, a []float64, alpha float64) error

	// Dot returns the dot product of a and b.
	Dot(a, b []float64) (float64, error)

	// MulVec stores A*x into dst, where A is the matrix of the
	// linear system.
	MulVec(dst, x []float64) error
}

// Settings holds various settings for
// solving a linear system.
type Settings struct {
	// Tolerance specifies the relative
	// residual tolerance. The iteration
	// stops when
	//  |r_i| < Tolerance * |b|.
	// Tolerance must be smaller than one
	// and greater than the machine
	// epsilon. Zero means DefaultTolerance.
	Tolerance float64

	// MaxIterations is the limit on the
	// number of iterations.
	// If it is zero, the iteration runs
	// until the tolerance is met.
	MaxIterations int

	// PSolve describes the
	// preconditioner solve that stores
	// into dst the solution of the
	// system
	//  M z = rhs.
	// If it is nil, no preconditioning
	// will be used (M is the
	// identity).
	PSolve func(dst, rhs []float64) error

	// Logger receives per-iteration debug
	// records. Nil disables logging.
	Logger *Logger
}

func defaultSettings(s *Settings) {
	if s.Tolerance == 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.Logger == nil {
		s.Logger = NoopLogger()
	}
}

// Result holds the result of an iterative solve.
type Result struct {
	// X is the approximate solution.
	X []float64
	// Stats holds the statistics of the
	// solve.
	Stats Stats
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of
	// iterations done.
	Iterations int
	// MatVec is the number of
	// matrix-vector products.
	MatVec int
	// PSolve is the number of
	// preconditioner solves.
	PSolve int
	// ResidualNorm is the final norm of
	// the residual.
	ResidualNorm float64
	// ResidualDot is the final residual
	// dot product r·r.
	ResidualDot float64
	// StartTime is an approximate time
	// when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration
	// of the solve.
	Runtime time.Duration
}

const dlamchE = 1.0 / (1 << 53)
