// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
	"github.com/yarabond/Serial-Parallel-Conjugate/distributed"
	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
)

func TestReferenceSolvesMatchDistributed(t *testing.T) {
	table, err := grid.NewIndexTable(12, 9)
	require.NoError(t, err)
	b := grid.RandomRHS(table.Len(), rand.New(rand.NewSource(1)))

	res, err := distributed.SolveInProcess(4, distributed.PipeConnector, table, b, iterative.Settings{})
	require.NoError(t, err)

	refs, err := referenceSolves(table, b, iterative.Settings{})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "reference", refs[0].name)
	assert.Equal(t, "jacobi", refs[1].name)
	for _, ref := range refs {
		assert.Positive(t, ref.res.Stats.Iterations, ref.name)
		assert.Less(t, relativeDifference(res.X, ref.res.X), 1e-6, ref.name)
	}
	// The preconditioned run is the only one that applies PSolve.
	assert.Zero(t, refs[0].res.Stats.PSolve)
	assert.Positive(t, refs[1].res.Stats.PSolve)
}

func TestRelativeDifference(t *testing.T) {
	assert.InDelta(t, 0.5, relativeDifference([]float64{0, 5}, []float64{0, 10}), 1e-15)
	assert.Equal(t, 5.0, relativeDifference([]float64{3, 4}, []float64{0, 0}))
}
