// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

// The concrete method/argument structures for every AMQP class are a
// user-facing concern out of this core's scope -- except the handful the
// runtime itself must recognize to drive the handshake, the
// channel lifecycle, and content-delivery classification. Everything else
// (Queue.Declare, Basic.Publish, Exchange.Bind, ...) travels as an opaque
// Method the caller supplies and the codec encodes; the core never looks
// inside it.

type ConnectionStart struct {
	VersionMajor, VersionMinor byte
	ServerProperties           Table
	Mechanisms                 string
	Locales                    string
}

func (ConnectionStart) Key() MethodKey { return keyConnectionStart }

type ConnectionStartOk struct {
	ClientProperties Table
	Mechanism        string
	Response         string
	Locale           string
}

func (ConnectionStartOk) Key() MethodKey { return keyConnectionStartOk }

type ConnectionSecure struct{ Challenge string }

func (ConnectionSecure) Key() MethodKey { return keyConnectionSecure }

type ConnectionSecureOk struct{ Response string }

func (ConnectionSecureOk) Key() MethodKey { return keyConnectionSecureOk }

type ConnectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (ConnectionTune) Key() MethodKey { return keyConnectionTune }

type ConnectionTuneOk struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (ConnectionTuneOk) Key() MethodKey { return keyConnectionTuneOk }

type ConnectionOpen struct{ VirtualHost string }

func (ConnectionOpen) Key() MethodKey { return keyConnectionOpen }

type ConnectionOpenOk struct{}

func (ConnectionOpenOk) Key() MethodKey { return keyConnectionOpenOk }

type ConnectionClose struct {
	ReplyCode uint16
	ReplyText string
}

func (ConnectionClose) Key() MethodKey { return keyConnectionClose }

type ConnectionCloseOk struct{}

func (ConnectionCloseOk) Key() MethodKey { return keyConnectionCloseOk }

type ConnectionBlocked struct{ Reason string }

func (ConnectionBlocked) Key() MethodKey { return keyConnectionBlocked }

type ConnectionUnblocked struct{}

func (ConnectionUnblocked) Key() MethodKey { return keyConnectionUnblocked }

type ChannelOpen struct{}

func (ChannelOpen) Key() MethodKey { return keyChannelOpen }

type ChannelOpenOk struct{}

func (ChannelOpenOk) Key() MethodKey { return keyChannelOpenOk }

type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
}

func (ChannelClose) Key() MethodKey { return keyChannelClose }

type ChannelCloseOk struct{}

func (ChannelCloseOk) Key() MethodKey { return keyChannelCloseOk }

// BasicDeliver, BasicReturn and BasicGetOk are content-start methods: the
// dispatcher's contentBuilder begins assembling a DeliveredMessage the
// moment one of these is seen.

type BasicDeliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (BasicDeliver) Key() MethodKey { return keyBasicDeliver }

type BasicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (BasicReturn) Key() MethodKey { return keyBasicReturn }

type BasicGet struct {
	Queue string
	NoAck bool
}

func (BasicGet) Key() MethodKey { return keyBasicGet }

type BasicGetOk struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (BasicGetOk) Key() MethodKey { return keyBasicGetOk }

type BasicGetEmpty struct{}

func (BasicGetEmpty) Key() MethodKey { return keyBasicGetEmpty }

type BasicAck struct {
	DeliveryTag uint64
	Multiple    bool
}

func (BasicAck) Key() MethodKey { return keyBasicAck }

type BasicNack struct {
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (BasicNack) Key() MethodKey { return keyBasicNack }

type BasicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (BasicCancel) Key() MethodKey { return keyBasicCancel }

// keyBasicFlow / BasicFlow cover the server->client flow-control push,
// AMQP's Channel.Flow (20, 20); the dispatcher hands it to
// ChannelCallback.Flow.
var keyBasicFlow = MethodKey{20, 20}

type BasicFlow struct{ Active bool }

func (BasicFlow) Key() MethodKey { return keyBasicFlow }
