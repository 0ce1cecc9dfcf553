// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"runtime"

	"go.uber.org/atomic"
)

// sharedChannelInner is the per-channel analogue of sharedConnectionInner:
// clones of the connection's queues plus this channel's own dispatcher
// management queue.
type sharedChannelInner struct {
	isOpen    *atomic.Bool
	channelID ChannelId
	outgoing  chan<- Frame
	mgmtTx    chan<- mgmtCommand
	cmdCh     chan<- interface{}
}

// Channel is a user-facing façade over one open AMQP channel: it exposes
// the synchronous RPC pattern for any AMQP method, plus registration of
// the callback that receives asynchronous pushes through this channel's
// ChannelDispatcher.
type Channel struct {
	shared *sharedChannelInner
	conn   *Connection
}

// ID returns the channel's AMQP channel id.
func (ch *Channel) ID() ChannelId { return ch.shared.channelID }

// IsOpen reports whether the channel (and its connection) are still live.
func (ch *Channel) IsOpen() bool {
	return ch.shared.isOpen.Load() && ch.conn.shared.isOpen.Load()
}

// openError reports why a façade call cannot proceed: ConnectionClosed once
// the whole connection is down, ChannelClosed when only this channel is,
// nil when the call may go ahead.
func (ch *Channel) openError() *Error {
	if !ch.conn.shared.isOpen.Load() {
		return newConnectionClosedError(0, "")
	}
	if !ch.shared.isOpen.Load() {
		return newChannelClosedError(ch.shared.channelID, 0, "")
	}
	return nil
}

// Call performs one synchronous AMQP request/response RPC on this channel:
// req is enqueued only after the waiter for expect is installed, so the
// reply can never race the registration.
func (ch *Channel) Call(ctx context.Context, req Method, expect MethodKey) (Method, error) {
	if err := ch.openError(); err != nil {
		return nil, err
	}
	ctx, done := ch.conn.rpcContext(ctx)
	defer done()
	return doRPC(ctx, ch.shared.mgmtTx, ch.shared.outgoing, ch.shared.channelID, req, expect)
}

// Send enqueues a method frame without waiting for any response, for
// fire-and-forget methods such as Basic.Publish/Basic.Ack/Basic.Nack.
func (ch *Channel) Send(ctx context.Context, m Method) error {
	if err := ch.openError(); err != nil {
		return err
	}
	return sendOutgoing(ctx, ch.shared.outgoing, Frame{Kind: FrameMethod, Channel: ch.shared.channelID, Method: m})
}

// SendContent enqueues a content message (method + header + body frames)
// in order, for Basic.Publish and similar. The method is typically
// something like BasicPublish, out of this core's scope to define; callers
// supply whatever Method their codec understands. frameMax caps the body
// bytes per frame; 0 means the connection's negotiated frame max.
func (ch *Channel) SendContent(ctx context.Context, m Method, header ContentHeader, body []byte, frameMax uint32) error {
	if err := ch.openError(); err != nil {
		return err
	}
	if err := sendOutgoing(ctx, ch.shared.outgoing, Frame{Kind: FrameMethod, Channel: ch.shared.channelID, Method: m}); err != nil {
		return err
	}
	header.BodySize = uint64(len(body))
	header.ClassID = m.Key().ClassID
	if err := sendOutgoing(ctx, ch.shared.outgoing, Frame{Kind: FrameContentHeader, Channel: ch.shared.channelID, Header: &header}); err != nil {
		return err
	}
	chunkSize := int(frameMax)
	if chunkSize <= 0 {
		chunkSize = int(ch.conn.tuning.FrameMax)
	}
	if len(body) == 0 {
		return nil
	}
	for offset := 0; offset < len(body); offset += chunkSize {
		end := offset + chunkSize
		if end > len(body) {
			end = len(body)
		}
		if err := sendOutgoing(ctx, ch.shared.outgoing, Frame{Kind: FrameContentBody, Channel: ch.shared.channelID, Body: body[offset:end]}); err != nil {
			return err
		}
	}
	return nil
}

// Get performs a synchronous Basic.Get: it installs a one-shot dispatcher
// waiter before sending the request, then waits for either the assembled
// GetOk content message or a GetEmpty. Returns (nil, nil) when the queue
// was empty.
func (ch *Channel) Get(ctx context.Context, queue string, noAck bool) (*DeliveredMessage, error) {
	if err := ch.openError(); err != nil {
		return nil, err
	}
	ctx, done := ch.conn.rpcContext(ctx)
	defer done()
	result := make(chan getResult, 1)
	select {
	case ch.shared.cmdCh <- dispatcherAwaitGet{result: result}:
	case <-ctx.Done():
		return nil, errQueueFull
	}
	if err := ch.Send(ctx, BasicGet{Queue: queue, NoAck: noAck}); err != nil {
		return nil, err
	}
	select {
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg, nil
	case <-ctx.Done():
		return nil, errQueueFull
	}
}

// RegisterCallback installs this channel's ChannelCallback, replacing any
// previously registered one.
func (ch *Channel) RegisterCallback(ctx context.Context, cb ChannelCallback) error {
	if err := ch.openError(); err != nil {
		return err
	}
	ack := make(chan struct{})
	select {
	case ch.shared.cmdCh <- dispatcherRegisterCallback{callback: cb, ack: ack}:
	case <-ctx.Done():
		return errQueueFull
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return errQueueFull
	}
}

// Close issues Channel.Close, waits for Channel.CloseOk, and unregisters
// the channel's resource. Idempotent.
func (ch *Channel) Close(ctx context.Context) error {
	if !ch.shared.isOpen.CompareAndSwap(true, false) {
		return nil
	}
	runtime.SetFinalizer(ch, nil)
	if !ch.conn.shared.isOpen.Load() {
		// The runtime is gone; the reader already failed this channel's
		// waiters and closed its dispatcher on the way out.
		return nil
	}
	ctx, done := ch.conn.rpcContext(ctx)
	defer done()
	_, err := doRPC(ctx, ch.shared.mgmtTx, ch.shared.outgoing, ch.shared.channelID, ChannelClose{
		ReplyCode: ReplySuccess,
	}, keyChannelCloseOk)

	// Best-effort dispatcher stop, never awaited: the command can land in
	// the buffer after the dispatcher already exited (server closed the
	// channel first), and the unregister below closes the inbound queue,
	// which stops the dispatcher even if this command is never seen.
	select {
	case ch.shared.cmdCh <- dispatcherShutdown{ack: make(chan struct{})}:
	default:
	}

	unregisterChannel(ctx, ch.shared.mgmtTx, ch.shared.channelID, nil)
	return err
}

// closeDetached is the channel analogue of Connection.closeDetached: a
// best-effort, non-blocking Channel.Close that records rather than panics
// on failure.
func (ch *Channel) closeDetached() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedCloseTimeout)
		defer cancel()
		if err := ch.Close(ctx); err != nil {
			select {
			case ch.conn.errCh <- err:
			default:
			}
		}
	}()
}
