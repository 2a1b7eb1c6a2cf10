// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by an Endpoint after Close.
	ErrClosed = errors.New("distributed: endpoint closed")
	// ErrProtocol is returned when a message arrives that the receiver
	// did not expect at this point of the protocol.
	ErrProtocol = errors.New("distributed: protocol violation")
	// ErrRemote wraps a failure reported by a worker.
	ErrRemote = errors.New("distributed: worker failed")
	// ErrStopped is returned by primitives called after Dispatcher.Stop.
	ErrStopped = errors.New("distributed: dispatcher stopped")
	// ErrNoOperator is returned by Dispatcher.MulVec when the dispatcher
	// was created without an index table.
	ErrNoOperator = errors.New("distributed: no index table")
)

// Endpoint is one side of a blocking point-to-point connection. Send
// returns once the message was handed over, and Recv blocks until a message
// arrives. An Endpoint is used by a single goroutine at a time.
type Endpoint interface {
	Send(Message) error
	Recv() (Message, error)
	Close() error
}

// chanEndpoint is an Endpoint backed by unbuffered channels, so a Send
// completes only when the peer receives.
type chanEndpoint struct {
	in   <-chan Message
	out  chan<- Message
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-process endpoints. Closing either one
// closes both.
func Pipe() (Endpoint, Endpoint) {
	ab := make(chan Message)
	ba := make(chan Message)
	done := make(chan struct{})
	once := new(sync.Once)
	a := &chanEndpoint{in: ba, out: ab, done: done, once: once}
	b := &chanEndpoint{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (e *chanEndpoint) Send(m Message) error {
	select {
	case e.out <- m:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

func (e *chanEndpoint) Recv() (Message, error) {
	select {
	case m := <-e.in:
		return m, nil
	case <-e.done:
		return Message{}, ErrClosed
	}
}

func (e *chanEndpoint) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}
