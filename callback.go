// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

// ConnectionCallback receives connection-level asynchronous server pushes.
// Implementations must not block for long and must not panic; a panic is
// recovered and logged by ReaderTask, never allowed to take the connection
// down.
type ConnectionCallback interface {
	Blocked(reason string)
	Unblocked()
	Close(replyCode uint16, replyText string)
}

// ChannelCallback receives a channel's asynchronous server pushes: content
// deliveries and returns, ack/nack confirmations, flow control, consumer
// cancellation, and the channel's own close. Invoked serially by that
// channel's ChannelDispatcher.
type ChannelCallback interface {
	Close(replyCode uint16, replyText string)
	Cancel(consumerTag string)
	Flow(active bool)
	Return(msg DeliveredMessage)
	Deliver(msg DeliveredMessage)
	Ack(deliveryTag uint64, multiple bool)
	Nack(deliveryTag uint64, multiple, requeue bool)
}

// NopConnectionCallback and NopChannelCallback are convenience no-op
// implementations for callers that only care about a subset of events;
// embed and override.
type NopConnectionCallback struct{}

func (NopConnectionCallback) Blocked(string)       {}
func (NopConnectionCallback) Unblocked()           {}
func (NopConnectionCallback) Close(uint16, string) {}

type NopChannelCallback struct{}

func (NopChannelCallback) Close(uint16, string)     {}
func (NopChannelCallback) Cancel(string)            {}
func (NopChannelCallback) Flow(bool)                {}
func (NopChannelCallback) Return(DeliveredMessage)  {}
func (NopChannelCallback) Deliver(DeliveredMessage) {}
func (NopChannelCallback) Ack(uint64, bool)         {}
func (NopChannelCallback) Nack(uint64, bool, bool)  {}
