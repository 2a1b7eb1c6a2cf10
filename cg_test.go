// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
)

func TestCG(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 3, 4, 5, 10, 20, 50, 100, 200, 500} {
		// Generate a symmetric positive-definite matrix A.
		a := make([]float64, n*n)
		lda := n
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				a[i*lda+j] = rnd.Float64()
			}
		}
		for i := 0; i < n; i++ {
			a[i*lda+i] += float64(n)
		}
		// Compute the right-hand side b so that the vector [1,1,...,1]
		// is the solution.
		want := make([]float64, n)
		for i := range want {
			want[i] = 1
		}
		b := make([]float64, n)
		bi := blas64.Implementation()
		bi.Dsymv(blas.Upper, n, 1, a, lda, want, 1, 0, b, 1)

		A := MatrixOps{
			MatVec: func(dst, x []float64) {
				bi.Dsymv(blas.Upper, n, 1, a, lda, x, 1, 0, dst, 1)
			},
		}
		r, err := LinearSolve(A, b, Settings{Tolerance: 1e-14, MaxIterations: 10 * n})

		if err != nil {
			t.Errorf("Case n=%v: unexpected error %v", n, err)
		}
		dist := floats.Distance(r.X, want, math.Inf(1))
		if dist > 1e-10 {
			t.Errorf("Case n=%v: unexpected solution, |want-got|=%v", n, dist)
		}
	}
}

func TestCGPoisson(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, dims := range [][2]int{{1, 1}, {3, 3}, {4, 7}, {10, 10}, {20, 20}, {40, 40}} {
		tab, err := grid.NewIndexTable(dims[0], dims[1])
		require.NoError(t, err)
		n := tab.Len()
		b := grid.RandomRHS(n, rnd)

		r, err := LinearSolve(MatrixOps{MatVec: tab.MulVec}, b, Settings{MaxIterations: 10 * n})
		require.NoError(t, err, "grid %v", dims)
		assert.Less(t, r.Stats.ResidualNorm/floats.Norm(b, 2), DefaultTolerance, "grid %v", dims)
		assert.Equal(t, r.Stats.Iterations, r.Stats.MatVec)

		// The recursively updated residual must agree with b - A*x.
		res := make([]float64, n)
		tab.MulVec(res, r.X)
		floats.SubTo(res, b, res)
		assert.Less(t, floats.Norm(res, 2)/floats.Norm(b, 2), 1e-8, "grid %v", dims)
	}
}

func TestCGMatchesDenseSolve(t *testing.T) {
	tab, err := grid.NewIndexTable(6, 5)
	require.NoError(t, err)
	n := tab.Len()
	b := grid.RandomRHS(n, rand.New(rand.NewSource(2)))

	var want mat.VecDense
	require.NoError(t, want.SolveVec(tab.Dense(), mat.NewVecDense(n, b)))

	r, err := LinearSolve(MatrixOps{MatVec: tab.MulVec}, b, Settings{})
	require.NoError(t, err)
	for i, v := range want.RawVector().Data {
		assert.InEpsilon(t, v, r.X[i], 1e-6, "x[%d]", i)
	}
}

func TestPreconditionedCG(t *testing.T) {
	tab, err := grid.NewIndexTable(12, 9)
	require.NoError(t, err)
	n := tab.Len()
	b := grid.RandomRHS(n, rand.New(rand.NewSource(3)))

	lap := tab.Laplacian()
	diag := make([]float64, n)
	lap.Diagonal(diag)

	plain, err := LinearSolve(MatrixOps{MatVec: lap.MulVec}, b, Settings{})
	require.NoError(t, err)

	pre, err := LinearSolve(MatrixOps{MatVec: lap.MulVec}, b, Settings{
		PSolve: JacobiPreconditioner(diag),
	})
	require.NoError(t, err)
	assert.Equal(t, pre.Stats.Iterations+1, pre.Stats.PSolve)
	assert.True(t, floats.EqualApprox(plain.X, pre.X, 1e-6*floats.Norm(plain.X, math.Inf(1))))
}

func TestCGIterationLimit(t *testing.T) {
	tab, err := grid.NewIndexTable(20, 20)
	require.NoError(t, err)
	b := grid.RandomRHS(tab.Len(), rand.New(rand.NewSource(4)))

	r, err := LinearSolve(MatrixOps{MatVec: tab.MulVec}, b, Settings{MaxIterations: 3})
	assert.True(t, errors.Is(err, ErrIterationLimit))
	assert.Equal(t, 3, r.Stats.Iterations)
	assert.Len(t, r.X, tab.Len())
}

func TestCGZeroRHS(t *testing.T) {
	tab, err := grid.NewIndexTable(3, 3)
	require.NoError(t, err)
	r, err := LinearSolve(MatrixOps{MatVec: tab.MulVec}, make([]float64, 9), Settings{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Stats.Iterations)
	assert.Equal(t, make([]float64, 9), r.X)
}

var errBackend = errors.New("backend failed")

type failingBackend struct {
	Local
	after int
}

func (f *failingBackend) Dot(a, b []float64) (float64, error) {
	if f.after == 0 {
		return 0, errBackend
	}
	f.after--
	return f.Local.Dot(a, b)
}

func TestCGBackendError(t *testing.T) {
	tab, err := grid.NewIndexTable(4, 4)
	require.NoError(t, err)
	b := grid.RandomRHS(tab.Len(), rand.New(rand.NewSource(5)))

	_, err = CG(&failingBackend{Local: Local{A: MatrixOps{MatVec: tab.MulVec}}, after: 4}, b, Settings{})
	assert.ErrorIs(t, err, errBackend)
}

func TestLocalShapeMismatch(t *testing.T) {
	var l Local
	dst := []float64{7, 7}
	require.NoError(t, l.Sum(dst, []float64{1, 2}, []float64{1, 2, 3}))
	require.NoError(t, l.Scale(dst, []float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{7, 7}, dst)

	d, err := l.Dot([]float64{1}, []float64{1, 2})
	require.NoError(t, err)
	assert.Zero(t, d)

	a, b := []float64{1, 2}, []float64{3}
	require.NoError(t, l.Swap(a, b))
	assert.Equal(t, []float64{1, 2}, a)
}

func TestLocalSwapTwice(t *testing.T) {
	var l Local
	a, b := []float64{1, 2, 3}, []float64{4, 5, 6}
	require.NoError(t, l.Swap(a, b))
	assert.Equal(t, []float64{4, 5, 6}, a)
	assert.Equal(t, []float64{1, 2, 3}, b)
	require.NoError(t, l.Swap(a, b))
	assert.Equal(t, []float64{1, 2, 3}, a)
	assert.Equal(t, []float64{4, 5, 6}, b)
}
