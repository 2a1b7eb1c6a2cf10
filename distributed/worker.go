// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"errors"
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
)

// ErrUnknownOp is reported for a request with an operation code outside
// Sum..StencilMultiply.
var ErrUnknownOp = errors.New("distributed: unknown operation")

// State is the position of a Worker in its protocol loop.
type State int32

const (
	WaitingForContinue State = iota
	WaitingForOpBatch
	Executing
	Terminated
)

func (s State) String() string {
	switch s {
	case WaitingForContinue:
		return "waiting-for-continue"
	case WaitingForOpBatch:
		return "waiting-for-op-batch"
	case Executing:
		return "executing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Worker executes primitive requests received from the controller. A worker
// keeps no data between requests: every request carries all its operands.
type Worker struct {
	rank  int
	ep    Endpoint
	batch int
	log   *iterative.Logger
	state atomic.Int32
}

// NewWorker returns the worker of the given rank (1 or more) talking to the
// controller over ep.
func NewWorker(rank int, ep Endpoint, opts ...Option) *Worker {
	if rank < 1 {
		panic("distributed: worker rank must be positive")
	}
	o := buildOptions(opts)
	return &Worker{
		rank:  rank,
		ep:    ep,
		batch: o.batchSize,
		log:   o.logger.WithRank(rank),
	}
}

// Rank returns the rank of w.
func (w *Worker) Rank() int { return w.rank }

// State returns the current state of w. It is safe to call concurrently
// with Run.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run serves requests until the controller sends a false continue flag, in
// which case it returns nil, or until the endpoint fails.
func (w *Worker) Run() error {
	w.setState(WaitingForContinue)
	executed := 0
	for {
		msg, err := w.ep.Recv()
		if err != nil {
			return fmt.Errorf("distributed: worker %d: %w", w.rank, err)
		}

		if msg.Tag.Kind == KindContinue {
			if !msg.Continue {
				w.setState(Terminated)
				w.log.Debug("terminated")
				return nil
			}
			executed = 0
			w.setState(WaitingForOpBatch)
			continue
		}

		if w.State() != WaitingForOpBatch {
			return fmt.Errorf("%w: worker %d: %v outside a batch", ErrProtocol, w.rank, msg.Tag)
		}
		w.setState(Executing)
		reply := w.handle(msg)
		if err := w.ep.Send(reply); err != nil {
			return fmt.Errorf("distributed: worker %d: %w", w.rank, err)
		}
		w.log.Debug("request served", "op", msg.Tag.Op, "seq", msg.Seq, "tag", msg.Tag.Code())

		executed++
		if executed == w.batch {
			w.setState(WaitingForContinue)
		} else {
			w.setState(WaitingForOpBatch)
		}
	}
}

// handle computes the reply to req.
func (w *Worker) handle(req Message) Message {
	reply := Message{
		Tag:  replyTag(req, w.rank),
		Seq:  req.Seq,
		Rank: w.rank,
	}
	var err error
	switch req.Tag.Op {
	case Sum:
		reply.A, err = sum(req)
	case Swap:
		reply.A, reply.B, err = swap(req)
	case ScalarMultiply:
		reply.A, err = scale(req)
	case Dot:
		reply.Value, err = dot(req)
	case StencilMultiply:
		reply.A, err = stencil(req)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownOp, int(req.Tag.Op))
	}
	if err != nil {
		reply.Err = err.Error()
		w.log.Error("request failed", "op", req.Tag.Op, "seq", req.Seq, "error", err)
	}
	return reply
}

func checkSlices(req Message, slices ...[]float64) error {
	for _, s := range slices {
		if len(s) != req.Range.Len() {
			return fmt.Errorf("%w: %v: slice of length %d for range %v", ErrProtocol, req.Tag.Op, len(s), req.Range)
		}
	}
	return nil
}

func sum(req Message) ([]float64, error) {
	if err := checkSlices(req, req.A, req.B); err != nil {
		return nil, err
	}
	c := make([]float64, len(req.A))
	floats.AddTo(c, req.A, req.B)
	return c, nil
}

func swap(req Message) (a, b []float64, err error) {
	if err := checkSlices(req, req.A, req.B); err != nil {
		return nil, nil, err
	}
	a = make([]float64, len(req.B))
	b = make([]float64, len(req.A))
	copy(a, req.B)
	copy(b, req.A)
	return a, b, nil
}

func scale(req Message) ([]float64, error) {
	if err := checkSlices(req, req.A); err != nil {
		return nil, err
	}
	c := make([]float64, len(req.A))
	floats.ScaleTo(c, req.Alpha, req.A)
	return c, nil
}

func dot(req Message) (float64, error) {
	if err := checkSlices(req, req.A, req.B); err != nil {
		return 0, err
	}
	return floats.Dot(req.A, req.B), nil
}

// stencil returns the zero-initialised contribution of the tile in req to
// A*x, where x is the whole input vector.
func stencil(req Message) ([]float64, error) {
	n := len(req.A)
	if len(req.Cells) != req.Tile.Rows()+2 {
		return nil, fmt.Errorf("%w: stencil window has %d rows for tile %v", ErrProtocol, len(req.Cells), req.Tile)
	}
	for _, row := range req.Cells {
		if len(row) != req.Tile.Cols()+2 {
			return nil, fmt.Errorf("%w: stencil window row of length %d for tile %v", ErrProtocol, len(row), req.Tile)
		}
		for _, c := range row {
			if c < grid.Outside || n <= c {
				return nil, fmt.Errorf("%w: cell index %d out of range", ErrProtocol, c)
			}
		}
	}
	res := make([]float64, n)
	grid.Apply(res, req.Cells, req.A)
	return res, nil
}
