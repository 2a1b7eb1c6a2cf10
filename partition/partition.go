// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package partition splits vectors and grids among a fixed set of workers.
//
// Vector operations use contiguous index ranges, one per worker. The stencil
// operator uses square tiles of the grid arranged in a rowSize×rowSize
// logical process grid.
package partition

// Range is a contiguous, inclusive range [Start, End] of vector indices.
// A Range with End < Start is empty.
type Range struct {
	Start, End int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Empty reports whether r holds no indices.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Ranges returns the ranges assigned to workers 1..workers for a vector of
// length n. Every index in [0, n-1] belongs to exactly one range.
//
// Each worker receives max(n/workers, 1) indices and the last worker absorbs
// the remainder. When n < workers the trailing workers receive empty ranges.
func Ranges(n, workers int) []Range {
	if workers <= 0 {
		panic("partition: worker count not positive")
	}
	if n < 0 {
		panic("partition: negative length")
	}
	chunk := max(n/workers, 1)
	ranges := make([]Range, workers)
	start := 0
	for i := range ranges {
		end := min(start+chunk-1, n-1)
		if i == workers-1 {
			end = n - 1
		}
		ranges[i] = Range{Start: start, End: end}
		if end >= start {
			start = end + 1
		}
	}
	return ranges
}

// Tile is an inclusive rectangle [Row0, Row1]×[Col0, Col1] of grid cells.
type Tile struct {
	Row0, Col0 int
	Row1, Col1 int
}

// Rows returns the number of grid rows covered by t.
func (t Tile) Rows() int { return t.Row1 - t.Row0 + 1 }

// Cols returns the number of grid columns covered by t.
func (t Tile) Cols() int { return t.Col1 - t.Col0 + 1 }

// Halo returns t grown by one cell on all four sides. The result may extend
// past the grid boundary.
func (t Tile) Halo() Tile {
	return Tile{
		Row0: t.Row0 - 1,
		Col0: t.Col0 - 1,
		Row1: t.Row1 + 1,
		Col1: t.Col1 + 1,
	}
}

// RowSize returns the side of the logical process grid used for the stencil
// operator on a rows×cols grid: the largest r with r*r <= workers that
// divides both rows and cols. It is at least 1.
func RowSize(rows, cols, workers int) int {
	if rows <= 0 || cols <= 0 {
		panic("partition: grid dimension not positive")
	}
	if workers <= 0 {
		panic("partition: worker count not positive")
	}
	size := 1
	for r := 2; r*r <= workers; r++ {
		if rows%r == 0 && cols%r == 0 {
			size = r
		}
	}
	return size
}

// Tiles returns the stencil tiles for a rows×cols grid, one per worker in
// row-major order across the RowSize×RowSize process grid. Workers beyond
// len(Tiles) take no part in the stencil operator.
func Tiles(rows, cols, workers int) []Tile {
	size := RowSize(rows, cols, workers)
	tr, tc := rows/size, cols/size
	tiles := make([]Tile, 0, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			tiles = append(tiles, Tile{
				Row0: i * tr,
				Col0: j * tc,
				Row1: (i+1)*tr - 1,
				Col1: (j+1)*tc - 1,
			})
		}
	}
	return tiles
}
