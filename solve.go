// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// MatrixOps describes the matrix of the
// linear system in terms of the A*x
// operation.
type MatrixOps struct {
	// Compute A*x and store the result
	// into dst.
	// It must be non-nil.
	MatVec func(dst, x []float64)
}

// Local is a Backend doing all vector algebra in the calling goroutine.
//
// Operands of mismatched length are not an error: the call returns without
// touching its outputs, and Dot returns zero.
type Local struct {
	A MatrixOps
}

var _ Backend = Local{}

func (l Local) Sum(dst, a, b []float64) error {
	if len(a) != len(b) || len(dst) != len(a) {
		return nil
	}
	floats.AddTo(dst, a, b)
	return nil
}

func (l Local) Swap(a, b []float64) error {
	if len(a) != len(b) {
		return nil
	}
	blas64.Swap(
		blas64.Vector{N: len(a), Inc: 1, Data: a},
		blas64.Vector{N: len(b), Inc: 1, Data: b},
	)
	return nil
}

func (l Local) Scale(dst, a []float64, alpha float64) error {
	if len(dst) != len(a) {
		return nil
	}
	floats.ScaleTo(dst, alpha, a)
	return nil
}

func (l Local) Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, nil
	}
	return floats.Dot(a, b), nil
}

func (l Local) MulVec(dst, x []float64) error {
	l.A.MatVec(dst, x)
	return nil
}

// LinearSolve solves the system of n linear equations
//
//	A*x = b,
//
// where the n×n symmetric positive definite matrix A is represented by the
// matrix-vector operation in a. The dimension of the problem n is determined
// by the length of b. The vector algebra is done locally.
//
// settings provide means for adjusting the iterative process. Zero values of
// the fields mean default values.
func LinearSolve(a MatrixOps, b []float64, settings Settings) (Result, error) {
	if a.MatVec == nil {
		panic("iterative: nil matrix-vector multiplication")
	}
	return CG(Local{A: a}, b, settings)
}

// JacobiPreconditioner returns a preconditioner solve for M = diag(d).
// All entries of d must be non-zero.
func JacobiPreconditioner(d []float64) func(dst, rhs []float64) error {
	for _, v := range d {
		if v == 0 {
			panic("iterative: zero on the diagonal")
		}
	}
	return func(dst, rhs []float64) error {
		floats.DivTo(dst, rhs, d)
		return nil
	}
}
