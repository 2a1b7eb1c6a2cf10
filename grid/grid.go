// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grid describes the 2D Poisson model problem: the table mapping
// grid cells to unknowns, the 5-point Laplacian acting on it, and right-hand
// sides.
package grid

import (
	"errors"
	"fmt"

	"github.com/yarabond/Serial-Parallel-Conjugate/partition"
)

// Outside is the index of any cell outside the domain. Neighbors at Outside
// contribute zero to the stencil (homogeneous Dirichlet boundary).
const Outside = -1

var (
	// ErrEmptyGrid is returned for a grid with no rows or no columns.
	ErrEmptyGrid = errors.New("grid: grid must have at least one row and one column")
)

// IndexTable maps the cells of a rows×cols grid to vector indices. Cell
// (r, c) holds the unknown r*cols + c. An IndexTable is never modified after
// creation and may be shared between goroutines.
type IndexTable struct {
	rows, cols int
}

// NewIndexTable returns the index table of a rows×cols grid.
func NewIndexTable(rows, cols int) (*IndexTable, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %d×%d", ErrEmptyGrid, rows, cols)
	}
	return &IndexTable{rows: rows, cols: cols}, nil
}

func (t *IndexTable) Rows() int { return t.rows }
func (t *IndexTable) Cols() int { return t.cols }

// Len returns the number of unknowns.
func (t *IndexTable) Len() int { return t.rows * t.cols }

// At returns the index of cell (r, c), or Outside.
func (t *IndexTable) At(r, c int) int {
	if r < 0 || t.rows <= r || c < 0 || t.cols <= c {
		return Outside
	}
	return r*t.cols + c
}

// Window returns the indices of the cells covered by tile, which may reach
// past the grid. Cells outside the grid hold Outside.
func (t *IndexTable) Window(tile partition.Tile) [][]int {
	w := make([][]int, tile.Rows())
	for i := range w {
		w[i] = make([]int, tile.Cols())
		for j := range w[i] {
			w[i][j] = t.At(tile.Row0+i, tile.Col0+j)
		}
	}
	return w
}

// Interior returns the tile covering the whole grid.
func (t *IndexTable) Interior() partition.Tile {
	return partition.Tile{Row1: t.rows - 1, Col1: t.cols - 1}
}

// MulVec computes dst = A*x where A is the 5-point Laplacian on t.
func (t *IndexTable) MulVec(dst, x []float64) {
	n := t.Len()
	if len(x) != n || len(dst) != n {
		panic("grid: dimension mismatch")
	}
	Apply(dst, t.Window(t.Interior().Halo()), x)
}

// Apply evaluates the 5-point Laplacian
//
//	4*x[c] - x[up] - x[down] - x[left] - x[right]
//
// for every interior cell c of the halo window w and stores it into dst[c].
// The first and last row and column of w are the halo; they are read but not
// written. Neighbors at Outside contribute zero. Entries of dst that do not
// belong to the interior of w are left unchanged.
func Apply(dst []float64, w [][]int, x []float64) {
	for i := 1; i < len(w)-1; i++ {
		for j := 1; j < len(w[i])-1; j++ {
			c := w[i][j]
			if c == Outside {
				continue
			}
			v := 4 * x[c]
			if up := w[i-1][j]; up != Outside {
				v -= x[up]
			}
			if down := w[i+1][j]; down != Outside {
				v -= x[down]
			}
			if left := w[i][j-1]; left != Outside {
				v -= x[left]
			}
			if right := w[i][j+1]; right != Outside {
				v -= x[right]
			}
			dst[c] = v
		}
	}
}
