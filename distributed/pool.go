// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
)

// Pool runs workers in goroutines of the current process.
type Pool struct {
	workers   []*Worker
	endpoints []Endpoint
	g         errgroup.Group
}

// Connector returns the worker-side endpoint for the worker of the given
// rank and the controller-side endpoint connected to it.
type Connector func(rank int) (controller, worker Endpoint, err error)

// PipeConnector connects workers through Pipe.
func PipeConnector(int) (Endpoint, Endpoint, error) {
	c, w := Pipe()
	return c, w, nil
}

// StreamPipeConnector connects workers through an in-memory net.Pipe carrying
// the stream encoding with the given compression. It exercises the same
// framing as a TCP deployment.
func StreamPipeConnector(comp Compression) Connector {
	return func(int) (Endpoint, Endpoint, error) {
		a, b := net.Pipe()
		c, err := NewStreamEndpoint(a, comp)
		if err != nil {
			return nil, nil, err
		}
		w, err := NewStreamEndpoint(b, comp)
		if err != nil {
			return nil, nil, err
		}
		return c, w, nil
	}
}

// NewPool starts n workers, connected with connect, and returns the pool.
func NewPool(n int, connect Connector, opts ...Option) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("distributed: worker count %d not positive", n)
	}
	p := &Pool{}
	for rank := 1; rank <= n; rank++ {
		c, w, err := connect(rank)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("distributed: connect worker %d: %w", rank, err)
		}
		p.endpoints = append(p.endpoints, c)
		p.workers = append(p.workers, NewWorker(rank, w, opts...))
	}
	for _, w := range p.workers {
		p.g.Go(func() error {
			err := w.Run()
			if err != nil {
				// Unblock a controller waiting on this worker.
				w.ep.Close()
			}
			return err
		})
	}
	return p, nil
}

// Endpoints returns the controller-side endpoints, in rank order.
func (p *Pool) Endpoints() []Endpoint { return p.endpoints }

// Workers returns the workers, in rank order.
func (p *Pool) Workers() []*Worker { return p.workers }

// Wait blocks until every worker returned and reports the first error.
func (p *Pool) Wait() error {
	err := p.g.Wait()
	p.closeAll()
	return err
}

func (p *Pool) closeAll() {
	for _, ep := range p.endpoints {
		ep.Close()
	}
}

// Accept accepts n worker connections on ln and greets each with its rank,
// assigned in order of arrival starting at 1. It returns the controller-side
// endpoints in rank order.
func Accept(ln net.Listener, n int, comp Compression) ([]Endpoint, error) {
	eps := make([]Endpoint, 0, n)
	fail := func(err error) ([]Endpoint, error) {
		for _, ep := range eps {
			ep.Close()
		}
		return nil, err
	}
	for rank := 1; rank <= n; rank++ {
		conn, err := ln.Accept()
		if err != nil {
			return fail(fmt.Errorf("distributed: accept worker %d: %w", rank, err))
		}
		ep, err := NewStreamEndpoint(conn, comp)
		if err != nil {
			conn.Close()
			return fail(err)
		}
		eps = append(eps, ep)
		if err := ep.Send(Message{Tag: Tag{Kind: KindHello}, Rank: rank}); err != nil {
			return fail(fmt.Errorf("distributed: greet worker %d: %w", rank, err))
		}
	}
	return eps, nil
}

// Serve runs a worker process over ep: it waits for the controller's
// greeting carrying its rank and then runs the worker loop.
func Serve(ep Endpoint, opts ...Option) error {
	hello, err := ep.Recv()
	if err != nil {
		return fmt.Errorf("distributed: waiting for rank: %w", err)
	}
	if hello.Tag.Kind != KindHello || hello.Rank < 1 {
		return fmt.Errorf("%w: expected greeting, got %v", ErrProtocol, hello.Tag)
	}
	return NewWorker(hello.Rank, ep, opts...).Run()
}

// Solve solves the Poisson problem on table with right-hand side b using
// the conjugate gradient method on workers reached through eps. The workers
// are stopped when the solve ends, whatever its outcome.
func Solve(eps []Endpoint, table *grid.IndexTable, b []float64, settings iterative.Settings, opts ...Option) (iterative.Result, error) {
	if settings.PSolve != nil {
		panic("distributed: preconditioning is not supported")
	}
	d := NewDispatcher(eps, table, opts...)
	res, err := iterative.CG(d, b, settings)
	return res, errors.Join(err, d.Stop())
}

// SolveInProcess runs Solve on a pool of n in-process workers.
func SolveInProcess(n int, connect Connector, table *grid.IndexTable, b []float64, settings iterative.Settings, opts ...Option) (iterative.Result, error) {
	p, err := NewPool(n, connect, opts...)
	if err != nil {
		return iterative.Result{}, err
	}
	res, err := Solve(p.Endpoints(), table, b, settings, opts...)
	if err != nil {
		p.closeAll()
	}
	return res, errors.Join(err, p.Wait())
}
