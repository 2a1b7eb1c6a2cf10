// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
	"github.com/yarabond/Serial-Parallel-Conjugate/partition"
)

// Dispatcher is the controller side of the protocol. Every method sends one
// request to each participating worker, blocks until all of them replied,
// and only then writes its outputs.
//
// Operands of mismatched length are not an error: the call sends nothing,
// leaves its outputs unchanged and, for Dot, returns zero. Callers are
// responsible for passing vectors of matching length.
//
// A Dispatcher is not safe for concurrent use; primitives never overlap.
type Dispatcher struct {
	workers []Endpoint // workers[i] has rank i+1
	table   *grid.IndexTable
	tiles   []partition.Tile

	batch int
	used  []int // requests sent to each worker in its current batch
	seq   uint64

	stopped bool
	log     *iterative.Logger
}

var _ iterative.Backend = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher driving the given workers; workers[i]
// is the worker of rank i+1. table is the grid used by MulVec and may be nil
// if MulVec is never called.
func NewDispatcher(workers []Endpoint, table *grid.IndexTable, opts ...Option) *Dispatcher {
	if len(workers) == 0 {
		panic("distributed: no workers")
	}
	o := buildOptions(opts)
	d := &Dispatcher{
		workers: workers,
		table:   table,
		batch:   o.batchSize,
		used:    make([]int, len(workers)),
		log:     o.logger.WithRank(0),
	}
	if table != nil {
		d.tiles = partition.Tiles(table.Rows(), table.Cols(), len(workers))
	}
	return d
}

// Workers returns the number of workers.
func (d *Dispatcher) Workers() int { return len(d.workers) }

// request is one message of a round-trip, addressed to a rank.
type request struct {
	rank int
	msg  Message
}

// send delivers msg to the worker of the given rank, opening a new batch
// with a continue flag first if needed.
func (d *Dispatcher) send(rank int, msg Message) error {
	ep := d.workers[rank-1]
	if d.used[rank-1] == 0 || d.used[rank-1] == d.batch {
		if err := ep.Send(control(true)); err != nil {
			return fmt.Errorf("distributed: continue to worker %d: %w", rank, err)
		}
		d.used[rank-1] = 0
	}
	d.used[rank-1]++
	if err := ep.Send(msg); err != nil {
		return fmt.Errorf("distributed: %v to worker %d: %w", msg.Tag, rank, err)
	}
	return nil
}

// roundTrip sends every request, receives one reply per request in rank
// order and, once all replies are in, passes them to assemble. A bad reply
// does not end the receive loop: the remaining replies are still drained so
// that no worker is left blocked on its send. The first failure is returned
// and assemble is not called.
func (d *Dispatcher) roundTrip(op Op, reqs []request, assemble func(reqs []request, replies []Message)) (err error) {
	if d.stopped {
		return ErrStopped
	}
	d.seq++
	seq := d.seq
	start := time.Now()
	defer func() {
		d.log.LogRoundTrip(op.String(), seq, len(reqs), time.Since(start), err)
	}()

	sent := len(reqs)
	var failed error
	for i := range reqs {
		reqs[i].msg.Seq = seq
		reqs[i].msg.Rank = reqs[i].rank
		if err := d.send(reqs[i].rank, reqs[i].msg); err != nil {
			sent, failed = i, err
			break
		}
	}

	replies := make([]Message, len(reqs))
	for i, r := range reqs[:sent] {
		rep, err := d.workers[r.rank-1].Recv()
		if err != nil {
			err = fmt.Errorf("distributed: %v from worker %d: %w", op, r.rank, err)
		} else {
			err = checkReply(r, rep)
		}
		if err != nil {
			if failed == nil {
				failed = err
			}
			continue
		}
		replies[i] = rep
	}
	if failed != nil {
		return failed
	}
	assemble(reqs, replies)
	return nil
}

func checkReply(r request, rep Message) error {
	want := replyTag(r.msg, r.rank)
	switch {
	case rep.Rank != r.rank || rep.Seq != r.msg.Seq || rep.Tag != want:
		return fmt.Errorf("%w: want %v seq %d from worker %d, got %v seq %d from worker %d",
			ErrProtocol, want, r.msg.Seq, r.rank, rep.Tag, rep.Seq, rep.Rank)
	case rep.Err != "":
		return fmt.Errorf("%w: worker %d: %s", ErrRemote, r.rank, rep.Err)
	}
	switch r.msg.Tag.Op {
	case Sum, ScalarMultiply:
		if len(rep.A) != r.msg.Range.Len() {
			return fmt.Errorf("%w: worker %d returned %d values for %v", ErrProtocol, r.rank, len(rep.A), r.msg.Range)
		}
	case Swap:
		if len(rep.A) != r.msg.Range.Len() || len(rep.B) != r.msg.Range.Len() {
			return fmt.Errorf("%w: worker %d returned short swap for %v", ErrProtocol, r.rank, r.msg.Range)
		}
	case StencilMultiply:
		if len(rep.A) != len(r.msg.A) {
			return fmt.Errorf("%w: worker %d returned %d values, want %d", ErrProtocol, r.rank, len(rep.A), len(r.msg.A))
		}
	}
	return nil
}

// vectorRequests builds one request per non-empty range of a length n
// vector. fill sets the operands for a range.
func (d *Dispatcher) vectorRequests(op Op, n int, fill func(m *Message, lo, hi int)) []request {
	var reqs []request
	for i, r := range partition.Ranges(n, len(d.workers)) {
		if r.Empty() {
			continue
		}
		m := Message{
			Tag:   requestTag(op, r.Start),
			Range: r,
		}
		fill(&m, r.Start, r.End+1)
		reqs = append(reqs, request{rank: i + 1, msg: m})
	}
	return reqs
}

func (d *Dispatcher) mismatch(op Op, lens ...int) bool {
	for _, l := range lens[1:] {
		if l != lens[0] {
			d.log.Debug("shape mismatch, skipped", "op", op, "lengths", lens)
			return true
		}
	}
	return false
}

// Sum stores a+b into dst.
func (d *Dispatcher) Sum(dst, a, b []float64) error {
	if d.mismatch(Sum, len(dst), len(a), len(b)) || len(a) == 0 {
		return nil
	}
	reqs := d.vectorRequests(Sum, len(a), func(m *Message, lo, hi int) {
		m.A, m.B = a[lo:hi], b[lo:hi]
	})
	return d.roundTrip(Sum, reqs, func(reqs []request, replies []Message) {
		for i, r := range reqs {
			copy(dst[r.msg.Range.Start:], replies[i].A)
		}
	})
}

// Swap exchanges the contents of a and b. The exchange is done by the
// workers: each one receives its slices of a and b and returns them in
// reverse roles.
func (d *Dispatcher) Swap(a, b []float64) error {
	if d.mismatch(Swap, len(a), len(b)) || len(a) == 0 {
		return nil
	}
	reqs := d.vectorRequests(Swap, len(a), func(m *Message, lo, hi int) {
		m.A, m.B = a[lo:hi], b[lo:hi]
	})
	return d.roundTrip(Swap, reqs, func(reqs []request, replies []Message) {
		for i, r := range reqs {
			copy(a[r.msg.Range.Start:], replies[i].A)
			copy(b[r.msg.Range.Start:], replies[i].B)
		}
	})
}

// ScalarMultiply stores alpha*a into dst.
func (d *Dispatcher) ScalarMultiply(dst, a []float64, alpha float64) error {
	if d.mismatch(ScalarMultiply, len(dst), len(a)) || len(a) == 0 {
		return nil
	}
	reqs := d.vectorRequests(ScalarMultiply, len(a), func(m *Message, lo, hi int) {
		m.A, m.Alpha = a[lo:hi], alpha
	})
	return d.roundTrip(ScalarMultiply, reqs, func(reqs []request, replies []Message) {
		for i, r := range reqs {
			copy(dst[r.msg.Range.Start:], replies[i].A)
		}
	})
}

// Scale implements iterative.Backend; it is ScalarMultiply.
func (d *Dispatcher) Scale(dst, a []float64, alpha float64) error {
	return d.ScalarMultiply(dst, a, alpha)
}

// Dot returns the dot product of a and b. The partial products are added in
// rank order, so the result is deterministic for a given worker count.
func (d *Dispatcher) Dot(a, b []float64) (float64, error) {
	if d.mismatch(Dot, len(a), len(b)) || len(a) == 0 {
		return 0, nil
	}
	reqs := d.vectorRequests(Dot, len(a), func(m *Message, lo, hi int) {
		m.A, m.B = a[lo:hi], b[lo:hi]
	})
	var res float64
	err := d.roundTrip(Dot, reqs, func(_ []request, replies []Message) {
		for _, rep := range replies {
			res += rep.Value
		}
	})
	return res, err
}

// StencilMultiply stores A*x into dst, where A is the 5-point Laplacian on
// table. Each tile worker receives its tile of table with a one-cell halo
// and the whole of x, and returns its contribution; tiles do not overlap, so
// the contributions are added into a zeroed dst.
func (d *Dispatcher) StencilMultiply(dst []float64, table *grid.IndexTable, x []float64) error {
	if table == nil {
		return ErrNoOperator
	}
	if d.mismatch(StencilMultiply, table.Len(), len(dst), len(x)) {
		return nil
	}
	tiles := d.tiles
	if table != d.table {
		tiles = partition.Tiles(table.Rows(), table.Cols(), len(d.workers))
	}

	reqs := make([]request, len(tiles))
	for i, tile := range tiles {
		halo := tile.Halo()
		reqs[i] = request{
			rank: i + 1,
			msg: Message{
				Tag:   requestTag(StencilMultiply, cellIndex(halo.Row0, halo.Col0)),
				Tile:  tile,
				Cells: table.Window(halo),
				A:     x,
			},
		}
	}
	return d.roundTrip(StencilMultiply, reqs, func(_ []request, replies []Message) {
		clear(dst)
		for _, rep := range replies {
			floats.Add(dst, rep.A)
		}
	})
}

// MulVec implements iterative.Backend with the stencil of the dispatcher's
// index table.
func (d *Dispatcher) MulVec(dst, x []float64) error {
	return d.StencilMultiply(dst, d.table, x)
}

// Stop sends a false continue flag to every worker, which makes them
// terminate. A failed send does not keep the remaining workers from being
// stopped; all failures are returned joined. Primitives called after Stop
// return ErrStopped. Stop is idempotent.
func (d *Dispatcher) Stop() error {
	if d.stopped {
		return nil
	}
	d.stopped = true
	var errs []error
	for i, ep := range d.workers {
		if err := ep.Send(control(false)); err != nil {
			errs = append(errs, fmt.Errorf("distributed: stop worker %d: %w", i+1, err))
		}
	}
	d.log.Debug("workers stopped", "workers", len(d.workers), "failed", len(errs))
	return errors.Join(errs...)
}
