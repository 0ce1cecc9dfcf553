// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import "fmt"

// ChannelId identifies one logical conversation multiplexed over a
// connection. Channel 0 is reserved for connection-level methods.
type ChannelId uint16

// ConnectionChannel is the reserved channel id for connection-level methods.
const ConnectionChannel ChannelId = 0

// MethodKey identifies an AMQP method by its class and method numbers,
// e.g. (20, 40) for Channel.Close. The core never interprets the payload of
// a method beyond this pair; argument structures for every AMQP class are a
// user-facing concern.
type MethodKey struct {
	ClassID  uint16
	MethodID uint16
}

func (k MethodKey) String() string {
	return fmt.Sprintf("%d:%d", k.ClassID, k.MethodID)
}

// Method is any decoded AMQP method argument list. Codecs produce concrete
// types satisfying this interface; the core only ever inspects Key().
type Method interface {
	Key() MethodKey
}

// Well-known MethodKeys the runtime must recognize to drive the handshake,
// channel lifecycle, and content-delivery routing. Every other method key is
// routed opaquely.
var (
	keyConnectionStart     = MethodKey{10, 10}
	keyConnectionStartOk   = MethodKey{10, 11}
	keyConnectionSecure    = MethodKey{10, 20}
	keyConnectionSecureOk  = MethodKey{10, 21}
	keyConnectionTune      = MethodKey{10, 30}
	keyConnectionTuneOk    = MethodKey{10, 31}
	keyConnectionOpen      = MethodKey{10, 40}
	keyConnectionOpenOk    = MethodKey{10, 41}
	keyConnectionClose     = MethodKey{10, 50}
	keyConnectionCloseOk   = MethodKey{10, 51}
	keyConnectionBlocked   = MethodKey{10, 60}
	keyConnectionUnblocked = MethodKey{10, 61}

	keyChannelOpen    = MethodKey{20, 10}
	keyChannelOpenOk  = MethodKey{20, 11}
	keyChannelClose   = MethodKey{20, 40}
	keyChannelCloseOk = MethodKey{20, 41}

	keyBasicDeliver  = MethodKey{60, 60}
	keyBasicReturn   = MethodKey{60, 50}
	keyBasicGet      = MethodKey{60, 70}
	keyBasicGetOk    = MethodKey{60, 71}
	keyBasicGetEmpty = MethodKey{60, 72}
	keyBasicAck      = MethodKey{60, 80}
	keyBasicNack     = MethodKey{60, 120}
	keyBasicCancel   = MethodKey{60, 30}
)

// contentStartKeys classifies methods that precede a content message
// (header + zero or more body frames). The ChannelDispatcher assembles the
// message that follows one of these.
var contentStartKeys = map[MethodKey]bool{
	keyBasicDeliver: true,
	keyBasicReturn:  true,
	keyBasicGetOk:   true,
}

// Table is an AMQP field table: a string-keyed bag of typed values. The core
// only ever passes Tables through (server properties, client properties);
// it never interprets their contents.
type Table map[string]interface{}

// FrameKind discriminates the four frame shapes of the AMQP wire protocol.
type FrameKind int

const (
	FrameMethod FrameKind = iota
	FrameContentHeader
	FrameContentBody
	FrameHeartbeat
)

func (k FrameKind) String() string {
	switch k {
	case FrameMethod:
		return "method"
	case FrameContentHeader:
		return "header"
	case FrameContentBody:
		return "body"
	case FrameHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// ContentHeader carries the declared body size and basic properties of a
// content message. BodySize is the only field the core's assembly logic
// depends on; Properties is passed through opaquely to the user.
type ContentHeader struct {
	ClassID    uint16
	BodySize   uint64
	Properties Table
}

// Frame is the unit ReaderTask and WriterTask exchange with the FrameCodec.
// Exactly one of Method/Header/Body is populated, selected by Kind.
type Frame struct {
	Kind    FrameKind
	Channel ChannelId
	Method  Method
	Header  *ContentHeader
	Body    []byte
}

// DeliveredMessage is the content message a ChannelDispatcher assembles from
// one triggering method (Basic.Deliver/Return/GetOk) plus its content
// header and body frames.
type DeliveredMessage struct {
	Method     Method
	Properties Table
	Body       []byte
}
