// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grid

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/yarabond/Serial-Parallel-Conjugate/internal/triplet"
)

// MaxRHS bounds the entries produced by RandomRHS.
const MaxRHS = 1000000

// RandomRHS returns a right-hand side of length n with integer-valued entries
// drawn uniformly from [0, MaxRHS).
func RandomRHS(n int, rnd *rand.Rand) []float64 {
	b := make([]float64, n)
	for i := range b {
		b[i] = float64(rnd.Intn(MaxRHS))
	}
	return b
}

// neighbors lists the four stencil directions as (row, column) offsets.
var neighbors = [4][2]int{{-1, 0}, {0, 1}, {1, 0}, {0, -1}}

// Laplacian returns the 5-point Laplacian on t in coordinate-list form.
func (t *IndexTable) Laplacian() *triplet.Matrix {
	n := t.Len()
	a := triplet.New(n, n)
	for r := 0; r < t.rows; r++ {
		for c := 0; c < t.cols; c++ {
			cur := t.At(r, c)
			a.Append(cur, cur, 4)
			for _, d := range neighbors {
				if nb := t.At(r+d[0], c+d[1]); nb != Outside {
					a.Append(cur, nb, -1)
				}
			}
		}
	}
	return a
}

// Dense returns the 5-point Laplacian on t as a dense matrix. It is meant for
// small grids only.
func (t *IndexTable) Dense() *mat.Dense {
	n := t.Len()
	a := mat.NewDense(n, n, nil)
	for r := 0; r < t.rows; r++ {
		for c := 0; c < t.cols; c++ {
			cur := t.At(r, c)
			a.Set(cur, cur, 4)
			for _, d := range neighbors {
				if nb := t.At(r+d[0], c+d[1]); nb != Outside {
					a.Set(cur, nb, -1)
				}
			}
		}
	}
	return a
}
