// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import "fmt"

// Kind enumerates the runtime's error taxonomy. It is not meant to be
// exhaustive of AMQP reply codes; it distinguishes the shapes the runtime
// itself needs to tell apart when failing a waiter or a façade call.
type Kind int

const (
	KindHandshakeFailed Kind = iota
	KindIoError
	KindDecodeError
	KindHeartbeatTimeout
	KindConnectionClosed
	KindChannelClosed
	KindUnexpectedFrame
	KindNoFreeChannel
	KindDuplicateResponder
	KindQueueFull
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeFailed:
		return "handshake_failed"
	case KindIoError:
		return "io_error"
	case KindDecodeError:
		return "decode_error"
	case KindHeartbeatTimeout:
		return "heartbeat_timeout"
	case KindConnectionClosed:
		return "connection_closed"
	case KindChannelClosed:
		return "channel_closed"
	case KindUnexpectedFrame:
		return "unexpected_frame"
	case KindNoFreeChannel:
		return "no_free_channel"
	case KindDuplicateResponder:
		return "duplicate_responder"
	case KindQueueFull:
		return "queue_full"
	default:
		return "unknown"
	}
}

// Error is the single error type every façade method returns through. The
// Kind discriminates the taxonomy; ReplyCode/ReplyText carry the AMQP
// close-reason when one applies (ConnectionClosed/ChannelClosed); Stage
// names the handshake step for HandshakeFailed.
type Error struct {
	Kind      Kind
	ReplyCode uint16
	ReplyText string
	Stage     string
	Expected  MethodKey
	Got       MethodKey
	Channel   ChannelId

	// Cause is the underlying error, when one triggered this Error (I/O
	// failure, decode failure, etc).
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHandshakeFailed:
		return fmt.Sprintf("amqp: handshake failed at stage %q: %v", e.Stage, e.Cause)
	case KindConnectionClosed:
		return fmt.Sprintf("amqp: connection closed (%d) %s", e.ReplyCode, e.ReplyText)
	case KindChannelClosed:
		return fmt.Sprintf("amqp: channel %d closed (%d) %s", e.Channel, e.ReplyCode, e.ReplyText)
	case KindUnexpectedFrame:
		return fmt.Sprintf("amqp: unexpected frame on channel %d: expected %s, got %s", e.Channel, e.Expected, e.Got)
	case KindNoFreeChannel:
		return "amqp: no free channel id available"
	case KindDuplicateResponder:
		return fmt.Sprintf("amqp: duplicate responder for %s on channel %d", e.Expected, e.Channel)
	case KindQueueFull:
		return "amqp: runtime is shut down, cannot enqueue"
	case KindIoError:
		return fmt.Sprintf("amqp: i/o error: %v", e.Cause)
	case KindDecodeError:
		return fmt.Sprintf("amqp: decode error: %v", e.Cause)
	case KindHeartbeatTimeout:
		return "amqp: heartbeat timeout"
	default:
		return "amqp: error"
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func newHandshakeError(stage string, cause error) *Error {
	return &Error{Kind: KindHandshakeFailed, Stage: stage, Cause: cause}
}

func newIoError(cause error) *Error {
	return &Error{Kind: KindIoError, Cause: cause}
}

func newDecodeError(cause error) *Error {
	return &Error{Kind: KindDecodeError, Cause: cause}
}

func newConnectionClosedError(code uint16, text string) *Error {
	return &Error{Kind: KindConnectionClosed, ReplyCode: code, ReplyText: text}
}

func newChannelClosedError(channel ChannelId, code uint16, text string) *Error {
	return &Error{Kind: KindChannelClosed, Channel: channel, ReplyCode: code, ReplyText: text}
}

func newUnexpectedFrameError(channel ChannelId, expected, got MethodKey) *Error {
	return &Error{Kind: KindUnexpectedFrame, Channel: channel, Expected: expected, Got: got}
}

var errNoFreeChannel = &Error{Kind: KindNoFreeChannel}

func newDuplicateResponderError(channel ChannelId, key MethodKey) *Error {
	return &Error{Kind: KindDuplicateResponder, Channel: channel, Expected: key}
}

var errQueueFull = &Error{Kind: KindQueueFull}

var errHeartbeatTimeout = &Error{Kind: KindHeartbeatTimeout}

// ReplySuccess is the AMQP reply code for a normal, client-initiated close.
const ReplySuccess = 200
