// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with field names shared by the solver, the
// dispatcher and the workers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, a text handler writing to stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that writes JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that writes human-readable records to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithRank adds the process rank to every record.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// LogRoundTrip records one completed primitive call.
func (l *Logger) LogRoundTrip(op string, seq uint64, workers int, elapsed time.Duration, err error) {
	if err != nil {
		l.Error("round-trip failed",
			"op", op,
			"seq", seq,
			"error", err,
		)
		return
	}
	l.Debug("round-trip completed",
		"op", op,
		"seq", seq,
		"workers", workers,
		"elapsed", elapsed,
	)
}

// LogIteration records the state after one CG iteration.
func (l *Logger) LogIteration(iteration int, residualNorm, relative float64) {
	l.Debug("iteration",
		"iteration", iteration,
		"residual_norm", residualNorm,
		"relative", relative,
	)
}

// LogSolve records the outcome of a solve.
func (l *Logger) LogSolve(stats Stats, err error) {
	if err != nil {
		l.Error("solve failed",
			"iterations", stats.Iterations,
			"residual_norm", stats.ResidualNorm,
			"error", err,
		)
		return
	}
	l.Info("solve completed",
		"iterations", stats.Iterations,
		"elapsed", stats.Runtime,
		"residual_dot", stats.ResidualDot,
		"residual_norm", stats.ResidualNorm,
	)
}
