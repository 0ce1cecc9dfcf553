// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"errors"
	"io"
)

// ProtocolHeader is the literal 8-byte AMQP 0-9-1 preamble written once at
// the start of the opening handshake.
var ProtocolHeader = [8]byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// ErrMalformedFrame is the sentinel a FrameCodec wraps into a ReadFrame
// error when the transport delivered bytes that do not parse as a frame,
// as opposed to the transport itself failing. The reader distinguishes the
// two when reporting the terminal failure (decode error vs. I/O error);
// both are fatal to the connection.
var ErrMalformedFrame = errors.New("amqp: malformed frame")

// FrameCodec is the external collaborator that turns a split duplex byte
// transport into a stream of typed Frames. Byte-level encoding/decoding of
// frames, field tables, and the protocol-header handshake are entirely its
// concern; the core only calls these four methods.
type FrameCodec interface {
	// WriteProtocolHeader writes the literal opening bytes. Called exactly
	// once, before any frame, by ConnectionHandle.Open.
	WriteProtocolHeader() error

	// ReadFrame blocks until the next frame is decoded off the transport's
	// read half, or returns an error (fatal to the connection). Errors
	// caused by undecodable bytes rather than transport failure wrap
	// ErrMalformedFrame.
	ReadFrame() (Frame, error)

	// WriteFrame encodes and writes one frame to the transport's write
	// half. Callers (WriterTask) serialize all calls to this method; the
	// codec itself need not be safe for concurrent use.
	WriteFrame(Frame) error

	io.Closer
}
