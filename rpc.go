// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import "context"

// doRPC implements the synchronous request/response RPC pattern: register
// the waiter before the request is on the wire, so the server's reply can
// never race past an uninstalled waiter.
func doRPC(ctx context.Context, mgmtCh chan<- mgmtCommand, outgoing chan<- Frame, channelID ChannelId, req Method, expect MethodKey) (Method, error) {
	slot := make(chan rpcResult, 1)
	ack := make(chan error, 1)

	select {
	case mgmtCh <- mgmtRegisterResponder{channelID: channelID, key: expect, slot: slot, ack: ack}:
	case <-ctx.Done():
		return nil, errQueueFull
	}

	// From here on ReaderTask will insert the waiter, so every early return
	// must issue a cancellation or the slot lingers in the registry and a
	// later RPC for the same (channel, key) pair fails DuplicateResponder.
	cancelWaiter := func() {
		select {
		case mgmtCh <- mgmtCancelResponder{channelID: channelID, key: expect, slot: slot}:
		default:
			// The runtime is shutting down and the management queue is
			// full or unserviced; ReaderTask fails and removes every
			// waiter on its way out.
		}
	}

	select {
	case err := <-ack:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		cancelWaiter()
		return nil, errQueueFull
	}

	if req != nil {
		if err := sendOutgoing(ctx, outgoing, Frame{Kind: FrameMethod, Channel: channelID, Method: req}); err != nil {
			cancelWaiter()
			return nil, err
		}
	}

	select {
	case res := <-slot:
		if res.err != nil {
			return nil, res.err
		}
		if res.frame.Method.Key() != expect {
			return nil, newUnexpectedFrameError(channelID, expect, res.frame.Method.Key())
		}
		return res.frame.Method, nil
	case <-ctx.Done():
		cancelWaiter()
		return nil, ctx.Err()
	}
}
