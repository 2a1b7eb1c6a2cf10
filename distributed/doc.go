// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package distributed runs the vector algebra of the conjugate gradient
// method on a pool of workers coordinated by one controller.
//
// The controller owns every vector. For each primitive (vector sum, swap,
// scalar multiply, dot product and the 5-point stencil product) the
// Dispatcher partitions the operands, sends every participating worker its
// share as one request, blocks until every worker has replied, and only then
// assembles the output. A primitive is a complete barrier: no two primitives
// ever overlap. The Dispatcher implements iterative.Backend, so the solver in
// the parent package runs unchanged on top of it.
//
// Workers run Worker.Run, a loop that waits for a continue flag, executes a
// batch of at most BatchSize requests, and waits for the next flag. A false
// flag terminates the worker.
//
// Messages travel over an Endpoint. Pipe connects a controller and a worker
// in one process with unbuffered channels; NewStreamEndpoint carries
// messages over any byte stream, such as a TCP connection, with optional
// zstd or lz4 compression of every frame.
//
// There is no timeout and no retry anywhere in the protocol. If a worker
// stops responding in the middle of a primitive, the controller and the
// remaining workers block forever on the channel transport; on a stream
// transport the failure surfaces only when the connection is closed.
// Callers that need liveness must supervise the processes themselves.
package distributed
