// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"fmt"

	"github.com/yarabond/Serial-Parallel-Conjugate/partition"
)

// Op selects the primitive a worker runs for one request.
type Op int

// Primitive operation codes.
const (
	Sum             Op = 1
	Swap            Op = 2
	ScalarMultiply  Op = 3
	Dot             Op = 4
	StencilMultiply Op = 5
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "sum"
	case Swap:
		return "swap"
	case ScalarMultiply:
		return "scalar-multiply"
	case Dot:
		return "dot"
	case StencilMultiply:
		return "stencil-multiply"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Kind identifies the logical payload of a message.
type Kind int

const (
	KindContinue Kind = iota + 1
	KindHello

	// Request payloads.
	KindFirst // first operand slice of a vector primitive
	KindCell  // halo window of the stencil operator

	// Reply payloads.
	KindResult       // output slice, or stencil contribution
	KindSwappedFirst // first operand after a swap
	KindPartial      // partial dot product
)

// Tag names one payload within one primitive call. Two payloads that can be
// in flight at the same time always have different tags: the index separates
// slices sent to different workers, and the kind separates the request and
// reply halves of the same call.
type Tag struct {
	Op    Op
	Kind  Kind
	Index int
}

// Legacy integer tag bases.
const (
	codeContinue      = 1234
	codeOp            = 12345
	codeFirst         = 1000000
	codeSwappedFirst  = 20000000
	codeStencilResult = 100000000
	codePartial       = 123121
	codeCellRow       = 10000
)

// Code returns the integer tag a raw point-to-point implementation of the
// protocol would use for the first element of the payload.
func (t Tag) Code() int {
	switch t.Kind {
	case KindContinue:
		return codeContinue
	case KindHello:
		return codeOp
	case KindFirst:
		return codeFirst + t.Index
	case KindCell:
		return t.Index
	case KindResult:
		if t.Op == StencilMultiply {
			return codeStencilResult + t.Index
		}
		return t.Index
	case KindSwappedFirst:
		return codeSwappedFirst + t.Index
	case KindPartial:
		return t.Index*10 + codePartial
	default:
		return -1
	}
}

func (t Tag) String() string {
	return fmt.Sprintf("%v/%d", t.Op, t.Code())
}

// cellIndex packs the grid cell (row, col), each at least -1, the way the
// legacy cell tags do.
func cellIndex(row, col int) int {
	return codeCellRow*(row+1) + (col + 1)
}

// requestTag returns the tag of a request for op. index is the first vector
// index of the slice, or the packed top-left halo cell of a stencil tile.
func requestTag(op Op, index int) Tag {
	if op == StencilMultiply {
		return Tag{Op: op, Kind: KindCell, Index: index}
	}
	return Tag{Op: op, Kind: KindFirst, Index: index}
}

// replyTag returns the tag a worker of the given rank puts on its reply to
// req.
func replyTag(req Message, rank int) Tag {
	switch req.Tag.Op {
	case Swap:
		return Tag{Op: Swap, Kind: KindSwappedFirst, Index: req.Range.Start}
	case Dot:
		return Tag{Op: Dot, Kind: KindPartial, Index: rank}
	case StencilMultiply:
		return Tag{Op: StencilMultiply, Kind: KindResult}
	default:
		return Tag{Op: req.Tag.Op, Kind: KindResult, Index: req.Range.Start}
	}
}

// Message is the unit exchanged between the controller and a worker. Which
// fields are set depends on Tag.Kind:
//
//	KindContinue      Continue
//	KindHello         Rank
//	KindFirst         Range, A, and B (Sum, Swap, Dot) or Alpha (ScalarMultiply)
//	KindCell          Tile, Cells (halo window), A (whole input vector)
//	KindResult        A
//	KindSwappedFirst  A and B already exchanged
//	KindPartial       Value
//
// Requests and replies also carry the sequence number of the primitive call
// and the rank of the worker. A reply with a non-empty Err reports a request
// the worker could not execute.
type Message struct {
	Tag      Tag
	Seq      uint64
	Rank     int
	Continue bool

	Range partition.Range
	Tile  partition.Tile
	Cells [][]int
	Alpha float64
	A, B  []float64
	Value float64

	Err string
}

func control(cont bool) Message {
	return Message{Tag: Tag{Kind: KindContinue}, Continue: cont}
}
