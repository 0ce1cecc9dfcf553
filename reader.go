// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// readerTask is the sole owner of the socket's read half and the sole
// mutable reference to channelRegistry. It is the only goroutine that
// inserts into, or removes from, the registry; every other actor only
// ever sends management commands to mgmtCh.
type readerTask struct {
	codec      FrameCodec
	registry   *channelRegistry
	mgmtCh     <-chan mgmtCommand
	outgoing   chan<- Frame
	heartbeat  time.Duration // negotiated interval; 0 disables the deadline
	logger     *logrus.Logger
	onShutdown func(reason *Error) // records the terminal reason, never panics
}

func (rt *readerTask) run(ctx context.Context) error {
	frameCh := make(chan Frame, 1)
	readErrCh := make(chan error, 1)
	go rt.readLoop(ctx, frameCh, readErrCh)

	var heartbeatTimer *time.Timer
	var heartbeatC <-chan time.Time
	if rt.heartbeat > 0 {
		heartbeatTimer = time.NewTimer(2 * rt.heartbeat)
		defer heartbeatTimer.Stop()
		heartbeatC = heartbeatTimer.C
	}

	var reason *Error
	defer func() {
		final := reason
		if final == nil {
			// Graceful, client-initiated shutdown (ctx cancelled after a
			// successful Connection.Close round-trip): any channel that
			// wasn't explicitly closed still needs its waiters failed.
			final = newConnectionClosedError(ReplySuccess, "")
		}
		rt.shutdownEverything(final)
		rt.onShutdown(reason)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErrCh:
			if errors.Is(err, ErrMalformedFrame) {
				reason = newDecodeError(err)
			} else {
				reason = newIoError(err)
			}
			return reason

		case f := <-frameCh:
			if heartbeatTimer != nil {
				if !heartbeatTimer.Stop() {
					select {
					case <-heartbeatTimer.C:
					default:
					}
				}
				heartbeatTimer.Reset(2 * rt.heartbeat)
			}
			if done, err := rt.handleFrame(ctx, f); done {
				reason = err
				return err
			}

		case cmd := <-rt.mgmtCh:
			rt.handleMgmt(cmd)

		case <-heartbeatC:
			reason = errHeartbeatTimeout
			return errHeartbeatTimeout
		}
	}
}

// readLoop is the only goroutine that calls codec.ReadFrame, so that the
// main select loop above can also service management commands and the
// heartbeat deadline while a read is in flight.
func (rt *readerTask) readLoop(ctx context.Context, frameCh chan<- Frame, errCh chan<- error) {
	for {
		f, err := rt.codec.ReadFrame()
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case frameCh <- f:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame routes one inbound frame to channel 0's connection-level
// handling or to its channel's registered resource. done==true means the
// connection is shutting down and err is the reason (for a server-initiated
// Connection.Close, a ConnectionClosed error carrying its reply code/text).
func (rt *readerTask) handleFrame(ctx context.Context, f Frame) (done bool, err *Error) {
	if f.Channel == ConnectionChannel {
		return rt.handleChannel0(ctx, f)
	}
	rt.handleChannelN(ctx, f)
	return false, nil
}

func (rt *readerTask) handleChannel0(ctx context.Context, f Frame) (done bool, err *Error) {
	switch f.Kind {
	case FrameHeartbeat:
		return false, nil
	case FrameMethod:
		switch m := f.Method.(type) {
		case ConnectionClose:
			sendOutgoingNonBlocking(ctx, rt.outgoing, Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionCloseOk{}})
			reason := newConnectionClosedError(m.ReplyCode, m.ReplyText)
			if rt.registry.callback != nil {
				rt.safeInvoke(func() { rt.registry.callback.Close(m.ReplyCode, m.ReplyText) })
			}
			return true, reason
		case ConnectionBlocked:
			if rt.registry.callback != nil {
				rt.safeInvoke(func() { rt.registry.callback.Blocked(m.Reason) })
			}
			return false, nil
		case ConnectionUnblocked:
			if rt.registry.callback != nil {
				rt.safeInvoke(func() { rt.registry.callback.Unblocked() })
			}
			return false, nil
		default:
			key := f.Method.Key()
			if res, ok := rt.registry.get(ConnectionChannel); ok {
				if slot, waiting := res.waiters[key]; waiting {
					slot <- rpcResult{frame: f}
					delete(res.waiters, key)
					return false, nil
				}
			}
			rt.logger.WithField("key", key).Warn("amqp: dropping unexpected channel-0 frame")
			return false, nil
		}
	default:
		rt.logger.WithField("kind", f.Kind).Warn("amqp: dropping unexpected channel-0 content frame")
		return false, nil
	}
}

func (rt *readerTask) handleChannelN(ctx context.Context, f Frame) {
	res, ok := rt.registry.get(f.Channel)
	if !ok {
		rt.handleUnregisteredChannel(ctx, f)
		return
	}

	switch f.Kind {
	case FrameHeartbeat:
		return

	case FrameMethod:
		key := f.Method.Key()
		if cc, isClose := f.Method.(ChannelClose); isClose {
			sendOutgoingNonBlocking(ctx, rt.outgoing, Frame{Kind: FrameMethod, Channel: f.Channel, Method: ChannelCloseOk{}})
			reason := newChannelClosedError(f.Channel, cc.ReplyCode, cc.ReplyText)
			rt.registry.failAllWaiters(res, reason)
			if res.dispatcher != nil {
				select {
				case res.dispatcher <- f:
				case <-ctx.Done():
				}
				// The reader is the sole sender on the dispatcher queue;
				// closing it lets the dispatcher goroutine drain and exit
				// while the connection lives on.
				close(res.dispatcher)
			}
			rt.registry.remove(f.Channel)
			return
		}

		if contentStartKeys[key] {
			if res.dispatcher != nil {
				select {
				case res.dispatcher <- f:
				case <-ctx.Done():
				}
			}
			return
		}

		if slot, waiting := res.waiters[key]; waiting {
			slot <- rpcResult{frame: f}
			delete(res.waiters, key)
			return
		}

		if res.dispatcher != nil {
			select {
			case res.dispatcher <- f:
			case <-ctx.Done():
			}
			return
		}
		rt.logger.WithFields(logrus.Fields{"channel": f.Channel, "key": key}).Warn("amqp: dropping unroutable method frame")

	case FrameContentHeader, FrameContentBody:
		if res.dispatcher != nil {
			select {
			case res.dispatcher <- f:
			case <-ctx.Done():
			}
		}
	}
}

// handleUnregisteredChannel mirrors AMQP 0-9-1 §2.3.7: a Close/Close-Ok race
// can legitimately land a method on a channel we've already torn down.
func (rt *readerTask) handleUnregisteredChannel(ctx context.Context, f Frame) {
	if f.Kind != FrameMethod {
		return
	}
	switch f.Method.(type) {
	case ChannelClose:
		sendOutgoingNonBlocking(ctx, rt.outgoing, Frame{Kind: FrameMethod, Channel: f.Channel, Method: ChannelCloseOk{}})
	case ChannelCloseOk:
		// already torn down on our side; nothing to do
	default:
		rt.logger.WithField("channel", f.Channel).Warn("amqp: method frame for unregistered channel")
	}
}

func (rt *readerTask) handleMgmt(cmd mgmtCommand) {
	switch c := cmd.(type) {
	case mgmtRegisterChannel:
		if c.channelID != nil {
			if _, taken := rt.registry.get(*c.channelID); taken {
				c.ack <- registerChannelAck{ok: false}
				return
			}
			rt.registry.insert(*c.channelID, c.resource)
			c.ack <- registerChannelAck{id: *c.channelID, ok: true}
			return
		}
		id, ok := rt.registry.allocate()
		if !ok {
			c.ack <- registerChannelAck{ok: false}
			return
		}
		rt.registry.insert(id, c.resource)
		c.ack <- registerChannelAck{id: id, ok: true}

	case mgmtUnregisterChannel:
		if res, ok := rt.registry.remove(c.channelID); ok {
			reason := c.reason
			if reason == nil {
				reason = newChannelClosedError(c.channelID, ReplySuccess, "")
			}
			rt.registry.failAllWaiters(res, reason)
			if res.dispatcher != nil {
				close(res.dispatcher)
			}
		}
		close(c.ack)

	case mgmtRegisterResponder:
		err := rt.registry.registerResponder(c.channelID, c.key, c.slot)
		c.ack <- err

	case mgmtCancelResponder:
		rt.registry.cancelResponder(c.channelID, c.key, c.slot)

	case mgmtRegisterConnCallback:
		rt.registry.callback = c.callback
		close(c.ack)
	}
}

// shutdownEverything fails every pending waiter across every registered
// channel with reason and closes their dispatcher queues. Runs exactly once,
// from run()'s deferred exit path, whatever the terminal cause (client
// close, server close, I/O error, heartbeat timeout).
func (rt *readerTask) shutdownEverything(reason *Error) {
	for _, res := range rt.registry.removeAll() {
		rt.registry.failAllWaiters(res, reason)
		if res.dispatcher != nil {
			close(res.dispatcher)
		}
	}
}

func (rt *readerTask) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.WithField("panic", r).Error("amqp: connection callback panicked, recovered")
		}
	}()
	fn()
}
