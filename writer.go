// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"time"
)

// writerDrainGrace bounds the best-effort flush WriterTask performs on
// shutdown.
const writerDrainGrace = 200 * time.Millisecond

// writerTask is the sole owner of the socket's write half. It drains
// outgoing, serializing every frame to the wire in enqueue order, and
// fills idle gaps with heartbeats when negotiated.
type writerTask struct {
	codec     FrameCodec
	outgoing  <-chan Frame
	heartbeat time.Duration
}

// run blocks until ctx is cancelled or a write fails. A non-nil return is
// always an *Error and is fatal: the caller (errgroup) propagates the
// cancellation to ReaderTask and any dispatchers sharing the group context.
func (w *writerTask) run(ctx context.Context) error {
	var tickC <-chan time.Time
	if w.heartbeat > 0 {
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		tickC = ticker.C
	}

	lastWrite := time.Now()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil

		case f, ok := <-w.outgoing:
			if !ok {
				return nil
			}
			if err := w.codec.WriteFrame(f); err != nil {
				return newIoError(err)
			}
			lastWrite = time.Now()

		case t := <-tickC:
			if t.Sub(lastWrite) >= w.heartbeat-time.Second {
				if err := w.codec.WriteFrame(Frame{Kind: FrameHeartbeat}); err != nil {
					return newIoError(err)
				}
				lastWrite = time.Now()
			}
		}
	}
}

// drain flushes whatever is already queued, bounded by writerDrainGrace, so
// a graceful Close() has a chance to land its final frames on the wire.
func (w *writerTask) drain() {
	deadline := time.NewTimer(writerDrainGrace)
	defer deadline.Stop()
	for {
		select {
		case f, ok := <-w.outgoing:
			if !ok {
				return
			}
			_ = w.codec.WriteFrame(f)
		case <-deadline.C:
			return
		}
	}
}

// sendOutgoing enqueues a frame, translating a closed/shutdown runtime or
// context cancellation into QueueFull, matching façade expectations that
// every enqueue attempt after shutdown fails visibly.
func sendOutgoing(ctx context.Context, outgoing chan<- Frame, f Frame) error {
	select {
	case outgoing <- f:
		return nil
	case <-ctx.Done():
		return errQueueFull
	}
}

// sendOutgoingNonBlocking is used by ReaderTask for replies it originates
// (Channel.CloseOk, Connection.CloseOk) so that a full outbound queue never
// blocks the reader while it might also be needed to drain a management
// command. If the fast path is full, the send is completed on a detached
// goroutine instead of blocking the reader.
func sendOutgoingNonBlocking(ctx context.Context, outgoing chan<- Frame, f Frame) {
	select {
	case outgoing <- f:
	default:
		go func() {
			select {
			case outgoing <- f:
			case <-ctx.Done():
			}
		}()
	}
}
