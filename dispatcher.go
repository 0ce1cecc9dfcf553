// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// contentBuilder assembles one content message out of a triggering method
// plus its content-header and zero or more content-body frames.
type contentBuilder struct {
	method Method
	header *ContentHeader
	body   []byte
}

func (b *contentBuilder) start(m Method) {
	b.method = m
	b.header = nil
	b.body = nil
}

func (b *contentBuilder) addHeader(h *ContentHeader) {
	b.header = h
	if h.BodySize > 0 {
		b.body = make([]byte, 0, h.BodySize)
	}
}

// addBody appends a body chunk and reports whether the message is now
// complete (accumulated body length reached the header's declared size).
func (b *contentBuilder) addBody(chunk []byte) bool {
	b.body = append(b.body, chunk...)
	return b.header != nil && uint64(len(b.body)) >= b.header.BodySize
}

func (b *contentBuilder) build() DeliveredMessage {
	msg := DeliveredMessage{Method: b.method, Body: b.body}
	if b.header != nil {
		msg.Properties = b.header.Properties
	}
	return msg
}

// dispatcherRegisterCallback / dispatcherShutdown are the management
// commands a ChannelDispatcher accepts over its own small command queue,
// kept separate from the connection's management queue so changing a
// callback never contends with channel registration.
type dispatcherRegisterCallback struct {
	callback ChannelCallback
	ack      chan struct{}
}

type dispatcherShutdown struct {
	ack chan struct{}
}

// dispatcherAwaitGet installs a one-shot waiter for the result of a pending
// Basic.Get on this channel. Basic.Get's reply is always a content-start
// method (GetOk) or a plain method (GetEmpty); since content-start methods
// always route to the dispatcher rather than the RPC waiter registry,
// Channel.Get must hook this same path instead of using doRPC.
type dispatcherAwaitGet struct {
	result chan getResult
}

type getResult struct {
	msg *DeliveredMessage
	err *Error
}

// channelDispatcher is the per-channel serializer for asynchronous server
// pushes. It owns the receive end of the channel's inbound frame queue:
// frames are handed off over a bounded channel and processed here, off
// ReaderTask's goroutine, so user callbacks never run on ReaderTask.
// ReaderTask waits only when that queue is full.
type channelDispatcher struct {
	channelID ChannelId
	inbound   <-chan Frame
	cmdCh     <-chan interface{}
	logger    *logrus.Logger
	isOpen    *atomic.Bool // shared with the Channel façade

	callback   ChannelCallback
	builder    contentBuilder
	pendingGet chan getResult
}

func newChannelDispatcher(id ChannelId, inbound <-chan Frame, cmdCh <-chan interface{}, logger *logrus.Logger, isOpen *atomic.Bool) *channelDispatcher {
	return &channelDispatcher{
		channelID: id,
		inbound:   inbound,
		cmdCh:     cmdCh,
		logger:    logger,
		isOpen:    isOpen,
		callback:  NopChannelCallback{},
	}
}

func (d *channelDispatcher) run(ctx context.Context) {
	defer d.failPendingGet(newChannelClosedError(d.channelID, 0, ""))
	for {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-d.cmdCh:
			if !ok {
				return
			}
			switch c := cmd.(type) {
			case dispatcherRegisterCallback:
				d.callback = c.callback
				close(c.ack)
			case dispatcherAwaitGet:
				d.pendingGet = c.result
			case dispatcherShutdown:
				close(c.ack)
				return
			}

		case f, ok := <-d.inbound:
			if !ok {
				return
			}
			d.handleFrame(f)
		}
	}
}

// failPendingGet resolves a waiting Channel.Get with err, if one is pending.
func (d *channelDispatcher) failPendingGet(err *Error) {
	if d.pendingGet != nil {
		d.pendingGet <- getResult{err: err}
		d.pendingGet = nil
	}
}

func (d *channelDispatcher) handleFrame(f Frame) {
	switch f.Kind {
	case FrameMethod:
		key := f.Method.Key()
		if contentStartKeys[key] {
			d.builder.start(f.Method)
			return
		}
		if cc, isClose := f.Method.(ChannelClose); isClose {
			// The server tore the channel down: the façade's flag flips so
			// a later Channel.Close becomes a no-op, and a Get in flight
			// fails instead of waiting out its context.
			d.isOpen.Store(false)
			d.failPendingGet(newChannelClosedError(d.channelID, cc.ReplyCode, cc.ReplyText))
		}
		d.invoke(func() {
			switch m := f.Method.(type) {
			case ChannelClose:
				d.callback.Close(m.ReplyCode, m.ReplyText)
			case BasicCancel:
				d.callback.Cancel(m.ConsumerTag)
			case BasicAck:
				d.callback.Ack(m.DeliveryTag, m.Multiple)
			case BasicNack:
				d.callback.Nack(m.DeliveryTag, m.Multiple, m.Requeue)
			case BasicFlow:
				d.callback.Flow(m.Active)
			case BasicGetEmpty:
				if d.pendingGet != nil {
					d.pendingGet <- getResult{}
					d.pendingGet = nil
				}
			default:
				d.logger.WithFields(logrus.Fields{
					"channel": d.channelID,
					"key":     key,
				}).Warn("amqp: dropping unrecognized asynchronous method")
			}
		})

	case FrameContentHeader:
		d.builder.addHeader(f.Header)
		if f.Header.BodySize == 0 {
			d.complete()
		}

	case FrameContentBody:
		if d.builder.addBody(f.Body) {
			d.complete()
		}
	}
}

func (d *channelDispatcher) complete() {
	msg := d.builder.build()
	key := msg.Method.Key()
	if key == keyBasicGetOk && d.pendingGet != nil {
		d.pendingGet <- getResult{msg: &msg}
		d.pendingGet = nil
		d.builder = contentBuilder{}
		return
	}
	d.invoke(func() {
		if key == keyBasicReturn {
			d.callback.Return(msg)
		} else {
			d.callback.Deliver(msg)
		}
	})
	d.builder = contentBuilder{}
}

// invoke runs the user callback, recovering a panic so it can never take
// the dispatcher (or anything else) down.
func (d *channelDispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"channel": d.channelID,
				"panic":   r,
			}).Error("amqp: channel callback panicked, recovered")
		}
	}()
	fn()
}
