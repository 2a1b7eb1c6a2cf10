// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package distributed

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how stream frames are compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression returns the Compression named s.
func ParseCompression(s string) (Compression, error) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("distributed: unknown compression %q", s)
}

// ErrFrameTooLarge is returned when a stream frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("distributed: frame too large")

// MaxFrameSize bounds the encoded size of one message on a stream.
const MaxFrameSize = 1 << 30

// frameHeaderSize is the size of the frame header:
//
//	[0:4] body length
//	[4]   compression of the body
//	[5:9] length of the uncompressed body
const frameHeaderSize = 9

type streamEndpoint struct {
	rw   io.ReadWriter
	r    *bufio.Reader
	w    *bufio.Writer
	comp Compression

	enc *zstd.Encoder
	dec *zstd.Decoder

	buf    bytes.Buffer
	header [frameHeaderSize]byte
}

// NewStreamEndpoint returns an Endpoint sending length-prefixed frames over
// rw. Every frame holds the gob encoding of one Message, compressed with
// comp. Frames from the peer are decoded whatever compression it chose.
// Close closes rw if it is an io.Closer.
func NewStreamEndpoint(rw io.ReadWriter, comp Compression) (Endpoint, error) {
	e := &streamEndpoint{
		rw:   rw,
		r:    bufio.NewReader(rw),
		w:    bufio.NewWriter(rw),
		comp: comp,
	}
	switch comp {
	case CompressionNone, CompressionLZ4:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("distributed: zstd encoder: %w", err)
		}
		e.enc = enc
	default:
		return nil, fmt.Errorf("distributed: unknown compression %v", comp)
	}
	return e, nil
}

// Dial connects to a controller listening on addr.
func Dial(network, addr string, comp Compression) (Endpoint, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("distributed: dial %s: %w", addr, err)
	}
	e, err := NewStreamEndpoint(conn, comp)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return e, nil
}

func (e *streamEndpoint) Send(m Message) error {
	e.buf.Reset()
	if err := gob.NewEncoder(&e.buf).Encode(&m); err != nil {
		return fmt.Errorf("distributed: encode %v: %w", m.Tag, err)
	}
	raw := e.buf.Bytes()
	body, comp := e.compress(raw)
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	binary.BigEndian.PutUint32(e.header[0:4], uint32(len(body)))
	e.header[4] = byte(comp)
	binary.BigEndian.PutUint32(e.header[5:9], uint32(len(raw)))
	if _, err := e.w.Write(e.header[:]); err != nil {
		return e.wrap(err)
	}
	if _, err := e.w.Write(body); err != nil {
		return e.wrap(err)
	}
	return e.wrap(e.w.Flush())
}

func (e *streamEndpoint) compress(raw []byte) ([]byte, Compression) {
	switch e.comp {
	case CompressionZstd:
		return e.enc.EncodeAll(raw, nil), CompressionZstd
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil || n == 0 {
			// Incompressible.
			return raw, CompressionNone
		}
		return dst[:n], CompressionLZ4
	default:
		return raw, CompressionNone
	}
}

func (e *streamEndpoint) Recv() (Message, error) {
	var m Message
	if _, err := io.ReadFull(e.r, e.header[:]); err != nil {
		return m, e.wrap(err)
	}
	size := binary.BigEndian.Uint32(e.header[0:4])
	rawSize := binary.BigEndian.Uint32(e.header[5:9])
	if size > MaxFrameSize || rawSize > MaxFrameSize {
		return m, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(e.r, body); err != nil {
		return m, e.wrap(err)
	}
	raw, err := e.decompress(body, Compression(e.header[4]), int(rawSize))
	if err != nil {
		return m, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return m, fmt.Errorf("distributed: decode: %w", err)
	}
	return m, nil
}

func (e *streamEndpoint) decompress(body []byte, comp Compression, rawSize int) ([]byte, error) {
	switch comp {
	case CompressionNone:
		return body, nil
	case CompressionZstd:
		if e.dec == nil {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("distributed: zstd decoder: %w", err)
			}
			e.dec = dec
		}
		raw, err := e.dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("distributed: zstd frame: %w", err)
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, fmt.Errorf("distributed: lz4 frame: %w", err)
		}
		return raw[:n], nil
	default:
		return nil, fmt.Errorf("%w: unknown frame compression %d", ErrProtocol, comp)
	}
}

// wrap maps the errors of a closed stream to ErrClosed.
func (e *streamEndpoint) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return fmt.Errorf("distributed: stream: %w", err)
	}
}

func (e *streamEndpoint) Close() error {
	if e.enc != nil {
		e.enc.Close()
	}
	if e.dec != nil {
		e.dec.Close()
	}
	if c, ok := e.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
