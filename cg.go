// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"fmt"
	"math"
	"time"
)

// CG solves the symmetric positive definite system
//
//	A x = b
//
// with the (optionally preconditioned) conjugate gradient method, starting
// from x = 0. Every vector operation is carried out by a, including the
// exchange of the current and next iterates at the end of an iteration. The
// only arithmetic done by CG itself are the scalar divisions forming α and β.
//
// The iteration stops when |r|/|b| < settings.Tolerance. If
// settings.MaxIterations is zero there is no iteration limit, and a system
// that does not converge keeps CG running.
//
// An error returned by a is fatal: CG stops and returns it together with
// the last complete iterate.
func CG(a Backend, b []float64, settings Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	dim := len(b)
	if dim == 0 {
		return Result{Stats: stats}, nil
	}

	defaultSettings(&settings)
	if settings.Tolerance < dlamchE || 1 <= settings.Tolerance {
		panic("iterative: invalid tolerance")
	}
	if settings.MaxIterations < 0 {
		panic("iterative: negative iteration limit")
	}

	var (
		r0, r1 = make([]float64, dim), make([]float64, dim)
		x0, x1 = make([]float64, dim), make([]float64, dim)
		p0, p1 = make([]float64, dim), make([]float64, dim)
		ap     = make([]float64, dim)
		tmp    = make([]float64, dim)
	)
	copy(r0, b) // r_0 = b - A*0

	// Without a preconditioner z is r.
	z0, z1 := r0, r1
	precond := settings.PSolve != nil

	s := &stepper{a: a, stats: &stats, psolve: settings.PSolve}
	if precond {
		z0, z1 = make([]float64, dim), make([]float64, dim)
		s.precondition(z0, r0)
	}
	copy(p0, z0) // p_0 = z_0

	bnorm := math.Sqrt(s.dot(b, b))
	if bnorm == 0 {
		bnorm = 1
	}
	rr := s.dot(r0, r0)
	rz := rr
	if precond {
		rz = s.dot(r0, z0)
	}

	log := settings.Logger
	var err error
	for s.err == nil && math.Sqrt(rr)/bnorm >= settings.Tolerance {
		if stats.Iterations == settings.MaxIterations && settings.MaxIterations > 0 {
			err = ErrIterationLimit
			break
		}
		stats.Iterations++

		s.mulVec(ap, p0)
		alpha := rz / s.dot(ap, p0) // α = r·z / p·Ap

		s.scale(tmp, p0, alpha)
		s.sum(x1, x0, tmp) // x_1 = x_0 + α p_0
		s.scale(tmp, ap, -alpha)
		s.sum(r1, r0, tmp) // r_1 = r_0 - α Ap_0

		if precond {
			s.precondition(z1, r1) // Solve M z_1 = r_1
		}
		rr1 := s.dot(r1, r1)
		rz1 := rr1
		if precond {
			rz1 = s.dot(r1, z1)
		}
		beta := rz1 / rz // β = r_1·z_1 / r_0·z_0

		s.scale(tmp, p0, beta)
		s.sum(p1, z1, tmp) // p_1 = z_1 + β p_0

		s.swap(r0, r1)
		s.swap(x0, x1)
		s.swap(p0, p1)
		if precond {
			s.swap(z0, z1)
		}
		if s.err != nil {
			break
		}
		rr, rz = rr1, rz1
		log.LogIteration(stats.Iterations, math.Sqrt(rr), math.Sqrt(rr)/bnorm)
	}
	if s.err != nil {
		err = fmt.Errorf("iterative: iteration %d: %w", stats.Iterations, s.err)
	}

	stats.ResidualDot = rr
	stats.ResidualNorm = math.Sqrt(rr)
	stats.Runtime = time.Since(stats.StartTime)
	log.LogSolve(stats, err)
	return Result{
		X:     x0,
		Stats: stats,
	}, err
}

// stepper issues backend calls and keeps the first error. Once an error
// occurred all further calls are skipped.
type stepper struct {
	a      Backend
	stats  *Stats
	psolve func(dst, rhs []float64) error
	err    error
}

func (s *stepper) sum(dst, a, b []float64) {
	if s.err == nil {
		s.err = s.a.Sum(dst, a, b)
	}
}

func (s *stepper) scale(dst, a []float64, alpha float64) {
	if s.err == nil {
		s.err = s.a.Scale(dst, a, alpha)
	}
}

func (s *stepper) swap(a, b []float64) {
	if s.err == nil {
		s.err = s.a.Swap(a, b)
	}
}

func (s *stepper) dot(a, b []float64) float64 {
	if s.err != nil {
		return 0
	}
	var d float64
	d, s.err = s.a.Dot(a, b)
	return d
}

func (s *stepper) mulVec(dst, x []float64) {
	if s.err == nil {
		s.err = s.a.MulVec(dst, x)
		s.stats.MatVec++
	}
}

func (s *stepper) precondition(dst, rhs []float64) {
	if s.err == nil {
		s.err = s.psolve(dst, rhs)
		s.stats.PSolve++
	}
}
