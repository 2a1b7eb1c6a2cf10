// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Distcg solves the 5-point Poisson problem on a rows×cols grid with a random
right-hand side, using the conjugate gradient method distributed over a
controller and a number of workers.

By default the workers run as goroutines of the same process. To run them as
separate processes, start the controller with a listening address

	distcg -transport=tcp -addr=":5000" -workers=4 -rows=40 -cols=40

and then, in four other terminals,

	distcg -worker -addr="localhost:5000"
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net"
	"os"

	"gonum.org/v1/gonum/floats"

	iterative "github.com/yarabond/Serial-Parallel-Conjugate"
	"github.com/yarabond/Serial-Parallel-Conjugate/distributed"
	"github.com/yarabond/Serial-Parallel-Conjugate/grid"
)

var (
	workers     = flag.Int("workers", 4, "number of worker processes")
	rows        = flag.Int("rows", 40, "grid rows")
	cols        = flag.Int("cols", 40, "grid columns")
	seed        = flag.Int64("seed", 1, "seed of the random right-hand side")
	tol         = flag.Float64("tol", iterative.DefaultTolerance, "relative residual tolerance")
	maxIter     = flag.Int("max-iter", 0, "iteration cap, 0 for none")
	transport   = flag.String("transport", "chan", "worker transport: chan, pipe or tcp")
	addr        = flag.String("addr", ":5000", "controller address for the tcp transport")
	compression = flag.String("compression", "none", "frame compression for pipe and tcp: none, zstd or lz4")
	worker      = flag.Bool("worker", false, "run as a worker dialing -addr")
	reference   = flag.Bool("reference", false, "also solve locally and report the difference")
	logFormat   = flag.String("log-format", "text", "log format: text or json")
	verbose     = flag.Bool("v", false, "log every iteration and round-trip")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	var logger *iterative.Logger
	switch *logFormat {
	case "text":
		logger = iterative.NewTextLogger(level)
	case "json":
		logger = iterative.NewJSONLogger(level)
	default:
		log.Fatalf("unknown log format %q", *logFormat)
	}

	comp, err := distributed.ParseCompression(*compression)
	if err != nil {
		log.Fatal(err)
	}

	if *worker {
		if err := serve(comp, logger); err != nil {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(comp, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func serve(comp distributed.Compression, logger *iterative.Logger) error {
	ep, err := distributed.Dial("tcp", *addr, comp)
	if err != nil {
		return err
	}
	defer ep.Close()
	return distributed.Serve(ep, distributed.WithLogger(logger))
}

func run(comp distributed.Compression, logger *iterative.Logger) error {
	table, err := grid.NewIndexTable(*rows, *cols)
	if err != nil {
		return err
	}
	b := grid.RandomRHS(table.Len(), rand.New(rand.NewSource(*seed)))
	settings := iterative.Settings{
		Tolerance:     *tol,
		MaxIterations: *maxIter,
		Logger:        logger,
	}
	opts := []distributed.Option{distributed.WithLogger(logger)}

	var res iterative.Result
	switch *transport {
	case "chan":
		res, err = distributed.SolveInProcess(*workers, distributed.PipeConnector, table, b, settings, opts...)
	case "pipe":
		res, err = distributed.SolveInProcess(*workers, distributed.StreamPipeConnector(comp), table, b, settings, opts...)
	case "tcp":
		res, err = solveTCP(comp, table, b, settings, opts)
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}
	if err != nil && !errors.Is(err, iterative.ErrIterationLimit) {
		return err
	}

	fmt.Printf("grid %dx%d, %d workers, %s transport\n", *rows, *cols, *workers, *transport)
	fmt.Printf("iterations: %d\n", res.Stats.Iterations)
	fmt.Printf("elapsed:    %v\n", res.Stats.Runtime)
	fmt.Printf("r·r:        %e\n", res.Stats.ResidualDot)
	if err != nil {
		fmt.Printf("not converged: %v\n", err)
	}

	if *reference {
		settings.Logger = iterative.NoopLogger()
		refs, err := referenceSolves(table, b, settings)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			fmt.Printf("%-11s %d iterations, relative difference %e\n",
				ref.name+":", ref.res.Stats.Iterations, relativeDifference(res.X, ref.res.X))
		}
	}
	return nil
}

type referenceRun struct {
	name string
	res  iterative.Result
}

// referenceSolves solves the problem locally on the assembled Laplacian, once
// plain and once with the Jacobi preconditioner.
func referenceSolves(table *grid.IndexTable, b []float64, settings iterative.Settings) ([]referenceRun, error) {
	a := table.Laplacian()
	ops := iterative.MatrixOps{MatVec: a.MulVec}

	plain, err := iterative.LinearSolve(ops, b, settings)
	if err != nil && !errors.Is(err, iterative.ErrIterationLimit) {
		return nil, err
	}

	diag := make([]float64, table.Len())
	a.Diagonal(diag)
	settings.PSolve = iterative.JacobiPreconditioner(diag)
	jacobi, err := iterative.LinearSolve(ops, b, settings)
	if err != nil && !errors.Is(err, iterative.ErrIterationLimit) {
		return nil, err
	}
	return []referenceRun{
		{name: "reference", res: plain},
		{name: "jacobi", res: jacobi},
	}, nil
}

func relativeDifference(x, ref []float64) float64 {
	diff := floats.Distance(x, ref, 2)
	if norm := floats.Norm(ref, 2); norm != 0 {
		diff /= norm
	}
	return diff
}

func solveTCP(comp distributed.Compression, table *grid.IndexTable, b []float64, settings iterative.Settings, opts []distributed.Option) (iterative.Result, error) {
	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return iterative.Result{}, err
	}
	defer ln.Close()
	settings.Logger.Info("waiting for workers", "addr", ln.Addr().String(), "workers", *workers)

	eps, err := distributed.Accept(ln, *workers, comp)
	if err != nil {
		return iterative.Result{}, err
	}
	defer func() {
		for _, ep := range eps {
			ep.Close()
		}
	}()
	return distributed.Solve(eps, table, b, settings, opts...)
}
