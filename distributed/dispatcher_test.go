// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
	"github.com/yarabond/Serial-Parallel-Conjugate/partition"
)

// startPool starts n pipe-connected workers and a dispatcher for table. The
// workers are stopped and awaited when the test ends.
func startPool(t *testing.T, n int, table *grid.IndexTable, opts ...Option) (*Dispatcher, *Pool) {
	t.Helper()
	p, err := NewPool(n, PipeConnector, opts...)
	require.NoError(t, err)
	d := NewDispatcher(p.Endpoints(), table, opts...)
	t.Cleanup(func() {
		require.NoError(t, d.Stop())
		require.NoError(t, p.Wait())
	})
	return d, p
}

func randomVector(n int, rnd *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rnd.Float64()
	}
	return v
}

func TestDot(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, workers := range []int{1, 2, 3, 4, 7, 16} {
		d, _ := startPool(t, workers, nil)
		for _, n := range []int{1, 2, 100, 1600} {
			a, b := randomVector(n, rnd), randomVector(n, rnd)
			got, err := d.Dot(a, b)
			require.NoError(t, err)
			want := floats.Dot(a, b)
			if math.Abs(got-want) > 1e-9*math.Abs(want) {
				t.Errorf("workers=%d n=%d: dot = %v, want %v", workers, n, got, want)
			}
		}
	}
}

func TestVectorPrimitives(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for _, workers := range []int{1, 3, 5, 8} {
		d, _ := startPool(t, workers, nil)
		for _, n := range []int{1, 2, 7, 100} {
			a, b := randomVector(n, rnd), randomVector(n, rnd)

			got := make([]float64, n)
			require.NoError(t, d.Sum(got, a, b))
			want := make([]float64, n)
			floats.AddTo(want, a, b)
			assert.Equal(t, want, got, "sum workers=%d n=%d", workers, n)

			require.NoError(t, d.ScalarMultiply(got, a, -2.5))
			floats.ScaleTo(want, -2.5, a)
			assert.Equal(t, want, got, "scale workers=%d n=%d", workers, n)
		}
	}
}

func TestSwap(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	d, _ := startPool(t, 4, nil)
	for _, n := range []int{1, 3, 50} {
		a, b := randomVector(n, rnd), randomVector(n, rnd)
		a0, b0 := append([]float64(nil), a...), append([]float64(nil), b...)

		require.NoError(t, d.Swap(a, b))
		assert.Equal(t, b0, a)
		assert.Equal(t, a0, b)

		require.NoError(t, d.Swap(a, b))
		assert.Equal(t, a0, a)
		assert.Equal(t, b0, b)
	}
}

func TestShapeMismatchIsNoop(t *testing.T) {
	d, _ := startPool(t, 2, nil)
	dst := []float64{5, 5, 5}
	require.NoError(t, d.Sum(dst, []float64{1, 2, 3}, []float64{1, 2}))
	require.NoError(t, d.ScalarMultiply(dst, []float64{1, 2}, 3))
	assert.Equal(t, []float64{5, 5, 5}, dst)

	a, b := []float64{1, 2}, []float64{3}
	require.NoError(t, d.Swap(a, b))
	assert.Equal(t, []float64{1, 2}, a)

	dot, err := d.Dot([]float64{1}, []float64{1, 2})
	require.NoError(t, err)
	assert.Zero(t, dot)

	table, err := grid.NewIndexTable(2, 2)
	require.NoError(t, err)
	require.NoError(t, d.StencilMultiply(dst, table, []float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{5, 5, 5}, dst)
}

func TestStencil3x3(t *testing.T) {
	table, err := grid.NewIndexTable(3, 3)
	require.NoError(t, err)
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	// Neighbors outside the grid contribute zero.
	want := []float64{
		4*1 - 2 - 4, 4*2 - 1 - 3 - 5, 4*3 - 2 - 6,
		4*4 - 1 - 7 - 5, 4*5 - 2 - 8 - 4 - 6, 4*6 - 3 - 9 - 5,
		4*7 - 4 - 8, 4*8 - 5 - 7 - 9, 4*9 - 6 - 8,
	}
	// 9 workers give one tile per cell, 4 workers fall back to one tile.
	for _, workers := range []int{1, 4, 9, 10} {
		d, _ := startPool(t, workers, table)
		got := make([]float64, 9)
		for i := range got {
			got[i] = math.NaN()
		}
		require.NoError(t, d.MulVec(got, x))
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestStencilMatchesSequential(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	for _, tc := range []struct {
		rows, cols, workers int
	}{
		{4, 4, 4},
		{6, 4, 5},
		{9, 12, 9},
		{40, 40, 16},
		{40, 40, 25},
		{13, 13, 8},
	} {
		table, err := grid.NewIndexTable(tc.rows, tc.cols)
		require.NoError(t, err)
		d, _ := startPool(t, tc.workers, table)

		x := randomVector(table.Len(), rnd)
		got := make([]float64, table.Len())
		require.NoError(t, d.StencilMultiply(got, table, x))
		want := make([]float64, table.Len())
		table.MulVec(want, x)
		assert.True(t, floats.EqualApprox(want, got, 1e-14), "grid %dx%d workers=%d", tc.rows, tc.cols, tc.workers)
	}
}

func TestBatchBoundaries(t *testing.T) {
	table, err := grid.NewIndexTable(4, 4)
	require.NoError(t, err)
	d, p := startPool(t, 4, table, WithBatchSize(2))

	x := randomVector(16, rand.New(rand.NewSource(5)))
	y := make([]float64, 16)
	for i := 0; i < 7; i++ {
		require.NoError(t, d.MulVec(y, x))
		_, err := d.Dot(x, y)
		require.NoError(t, err)
	}
	for _, w := range p.Workers() {
		assert.NotEqual(t, Terminated, w.State())
	}
}

func TestTermination(t *testing.T) {
	p, err := NewPool(6, PipeConnector)
	require.NoError(t, err)
	d := NewDispatcher(p.Endpoints(), nil)

	_, err = d.Dot([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)

	require.NoError(t, d.Stop())
	require.NoError(t, p.Wait())
	for _, w := range p.Workers() {
		assert.Equal(t, Terminated, w.State(), "worker %d", w.Rank())
	}

	require.NoError(t, d.Stop())
	_, err = d.Dot([]float64{1}, []float64{1})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRemoteError(t *testing.T) {
	c, w := Pipe()
	worker := NewWorker(1, w)
	done := make(chan error, 1)
	go func() { done <- worker.Run() }()

	// A request whose operands do not match its range is reported back.
	d := NewDispatcher([]Endpoint{c}, nil)
	err := d.roundTrip(Sum, []request{{
		rank: 1,
		msg: Message{
			Tag: requestTag(Sum, 0),
			A:   []float64{1, 2},
			B:   []float64{1},
		},
	}}, func([]request, []Message) {})
	assert.ErrorIs(t, err, ErrRemote)

	// So is an unknown operation.
	err = d.roundTrip(Op(9), []request{{rank: 1, msg: Message{Tag: requestTag(Op(9), 0)}}}, func([]request, []Message) {})
	assert.ErrorIs(t, err, ErrRemote)

	require.NoError(t, d.Stop())
	require.NoError(t, <-done)
}

// within fails the test if f does not return in time.
func within(t *testing.T, d time.Duration, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("blocked for more than %v", d)
	}
}

func TestRemoteErrorAmongWorkers(t *testing.T) {
	for bad := 1; bad <= 3; bad++ {
		p, err := NewPool(3, PipeConnector)
		require.NoError(t, err)
		d := NewDispatcher(p.Endpoints(), nil)

		var reqs []request
		for rank := 1; rank <= 3; rank++ {
			m := Message{
				Tag:   requestTag(Sum, rank-1),
				Range: partition.Range{Start: rank - 1, End: rank - 1},
				A:     []float64{1},
				B:     []float64{2},
			}
			if rank == bad {
				m.A = []float64{1, 2}
			}
			reqs = append(reqs, request{rank: rank, msg: m})
		}
		assembled := false
		err = d.roundTrip(Sum, reqs, func([]request, []Message) { assembled = true })
		assert.ErrorIs(t, err, ErrRemote, "bad rank %d", bad)
		assert.False(t, assembled)

		// Every worker, including those past the failing one, still
		// receives the stop flag.
		within(t, 5*time.Second, func() {
			assert.NoError(t, d.Stop())
			assert.NoError(t, p.Wait())
		})
		for _, w := range p.Workers() {
			assert.Equal(t, Terminated, w.State(), "bad rank %d, worker %d", bad, w.Rank())
		}
	}
}

func TestStopReachesAllWorkers(t *testing.T) {
	var (
		eps     []Endpoint
		workers []*Worker
		g       errgroup.Group
	)
	for rank := 1; rank <= 3; rank++ {
		c, w := Pipe()
		eps = append(eps, c)
		worker := NewWorker(rank, w)
		workers = append(workers, worker)
		if rank == 2 {
			w.Close()
			continue
		}
		g.Go(worker.Run)
	}

	d := NewDispatcher(eps, nil)
	err := d.Stop()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorContains(t, err, "worker 2")
	require.NoError(t, g.Wait())
	assert.Equal(t, Terminated, workers[0].State())
	assert.Equal(t, Terminated, workers[2].State())
}

func TestRequestOutsideBatch(t *testing.T) {
	c, w := Pipe()
	worker := NewWorker(1, w)
	done := make(chan error, 1)
	go func() { done <- worker.Run() }()

	require.NoError(t, c.Send(Message{Tag: requestTag(Dot, 0)}))
	assert.ErrorIs(t, <-done, ErrProtocol)
	assert.Equal(t, WaitingForContinue, worker.State())
}
