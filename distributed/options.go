// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
)

// BatchSize is the default number of requests a worker executes per continue
// flag.
const BatchSize = 15

type options struct {
	logger    *iterative.Logger
	batchSize int
}

// Option configures a Dispatcher, a Worker or a Pool.
type Option func(*options)

// WithLogger sets the logger. Dispatchers and workers log every round-trip
// at debug level.
func WithLogger(l *iterative.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBatchSize sets the number of requests per continue flag. Controller
// and workers must agree on it.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			panic("distributed: batch size not positive")
		}
		o.batchSize = n
	}
}

func buildOptions(opts []Option) options {
	o := options{
		batchSize: BatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = iterative.NoopLogger()
	}
	return o
}
