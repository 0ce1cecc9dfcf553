// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// detachedCloseTimeout bounds the background Close a finalizer schedules,
// since that path has no caller-supplied context to honor.
const detachedCloseTimeout = 10 * time.Second

// Connection manages the serialization and dispatch of frames for a single
// AMQP 0-9-1 session: a WriterTask and a ReaderTask cooperate over one
// FrameCodec, multiplexing every open Channel's synchronous RPCs and
// asynchronous deliveries over it.
//
// A Connection is safe to share: OpenChannel, Close and RegisterCallback
// may all be called concurrently from multiple goroutines.
type Connection struct {
	shared *sharedConnectionInner

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	logger *logrus.Logger
	errCh  chan error

	tuning          TuningPreferences // negotiated, immutable after Open
	rpcTimeout      time.Duration
	dispatcherDepth int

	// Properties holds the server properties sent with Connection.Start,
	// e.g. product, version, and capabilities. Set once before Open
	// returns; safe to read without synchronization thereafter.
	Properties Table
}

// Capabilities returns the server's advertised capabilities table, the
// "capabilities" entry of Properties, or nil if the server didn't send one.
func (c *Connection) Capabilities() Table {
	capabilities, _ := c.Properties["capabilities"].(Table)
	return capabilities
}

// Tuning returns the triple negotiated during the opening handshake.
func (c *Connection) Tuning() TuningPreferences { return c.tuning }

// sharedConnectionInner is the small, cheaply cloneable state every
// Channel's façade also needs a copy of.
type sharedConnectionInner struct {
	isOpen     *atomic.Bool
	channelMax uint16
	outgoingTx chan Frame
	mgmtTx     chan mgmtCommand
}

// Open performs the blocking AMQP opening handshake over an
// already-connected codec, then spawns WriterTask, ReaderTask, and
// registers channel 0, returning a ready-to-use Connection.
//
// ctx (tightened by Config.HandshakeTimeout when set) bounds the handshake
// only; expiry closes the codec, which fails the blocking read in progress.
func Open(ctx context.Context, codec FrameCodec, cfg Config) (*Connection, error) {
	cfg2 := cfg.withDefaults()

	hsCtx := ctx
	if cfg2.HandshakeTimeout > 0 {
		var hsCancel context.CancelFunc
		hsCtx, hsCancel = context.WithTimeout(ctx, cfg2.HandshakeTimeout)
		defer hsCancel()
	}
	stopWatchdog := context.AfterFunc(hsCtx, func() { codec.Close() })
	defer stopWatchdog()

	if err := codec.WriteProtocolHeader(); err != nil {
		codec.Close()
		return nil, newHandshakeError("protocol-header", err)
	}

	start, err := expectMethod[ConnectionStart](codec)
	if err != nil {
		codec.Close()
		return nil, newHandshakeError("start", err)
	}

	auth, ok := pickSASLMechanism(cfg2.Credentials.SASL, splitMechanisms(start.Mechanisms))
	if !ok {
		codec.Close()
		return nil, newHandshakeError("auth", errNoMechanism)
	}

	if err := codec.WriteFrame(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionStartOk{
		Mechanism: auth.Mechanism(),
		Response:  auth.Response(),
		Locale:    "en_US",
	}}); err != nil {
		codec.Close()
		return nil, newHandshakeError("start-ok", err)
	}

	tune, err := readThroughSecure(codec, auth)
	if err != nil {
		codec.Close()
		return nil, err
	}

	channelMax := negotiateUint16(cfg2.Tuning.ChannelMax, tune.ChannelMax, DefaultChannelMax)
	frameMax := negotiateUint32(cfg2.Tuning.FrameMax, tune.FrameMax, DefaultFrameMax)
	heartbeat := negotiateHeartbeat(cfg2.Tuning.Heartbeat, toDuration(tune.Heartbeat))

	if err := codec.WriteFrame(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionTuneOk{
		ChannelMax: channelMax,
		FrameMax:   frameMax,
		Heartbeat:  fromDuration(heartbeat),
	}}); err != nil {
		codec.Close()
		return nil, newHandshakeError("tune-ok", err)
	}

	if err := codec.WriteFrame(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionOpen{VirtualHost: cfg2.Vhost}}); err != nil {
		codec.Close()
		return nil, newHandshakeError("open", err)
	}
	if _, err := expectMethod[ConnectionOpenOk](codec); err != nil {
		codec.Close()
		return nil, newHandshakeError("open", err)
	}
	stopWatchdog()

	shared := &sharedConnectionInner{
		isOpen:     atomic.NewBool(true),
		channelMax: channelMax,
		outgoingTx: make(chan Frame, cfg2.OutgoingQueueDepth),
		mgmtTx:     make(chan mgmtCommand, cfg2.ManagementQueueDepth),
	}
	errCh := make(chan error, 4)

	gctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(gctx)

	conn := &Connection{
		shared:          shared,
		ctx:             gctx,
		cancel:          cancel,
		group:           group,
		logger:          cfg2.Logger,
		errCh:           errCh,
		tuning:          TuningPreferences{ChannelMax: channelMax, FrameMax: frameMax, Heartbeat: heartbeat},
		rpcTimeout:      cfg2.RPCTimeout,
		dispatcherDepth: cfg2.DispatcherQueueDepth,
		Properties:      Table(start.ServerProperties),
	}

	registry := newChannelRegistry(channelMax)
	registry.insert(ConnectionChannel, newChannelResource(nil))

	wt := &writerTask{codec: codec, outgoing: shared.outgoingTx, heartbeat: heartbeat}
	rt := &readerTask{
		codec:     codec,
		registry:  registry,
		mgmtCh:    shared.mgmtTx,
		outgoing:  shared.outgoingTx,
		heartbeat: heartbeat,
		logger:    cfg2.Logger,
		// Deliberately captures shared and errCh, never conn itself: the
		// reader goroutine outlives any caller reference to conn, and
		// rooting conn from here would keep its finalizer from ever running.
		onShutdown: func(reason *Error) {
			shared.isOpen.Store(false)
			if reason != nil {
				select {
				case errCh <- reason:
				default:
				}
			}
		},
	}

	group.Go(func() error {
		err := wt.run(gctx)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
		return err
	})
	group.Go(func() error { return rt.run(gctx) })
	group.Go(func() error {
		<-gctx.Done()
		codec.Close()
		return nil
	})

	runtime.SetFinalizer(conn, (*Connection).closeDetached)

	return conn, nil
}

// IsOpen reports whether the connection is still live.
func (c *Connection) IsOpen() bool { return c.shared.isOpen.Load() }

// Errors surfaces terminal failures (I/O, decode, heartbeat timeout) that
// were not the result of a local, successful Close(). A background
// closeDetached failure is recorded here rather than panicking.
func (c *Connection) Errors() <-chan error { return c.errCh }

// rpcContext applies the connection's default RPC timeout when the caller's
// context carries no deadline of its own.
func (c *Connection) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.rpcTimeout > 0 {
		if _, has := ctx.Deadline(); !has {
			return context.WithTimeout(ctx, c.rpcTimeout)
		}
	}
	return ctx, func() {}
}

// RegisterCallback installs the connection-level callback for
// Connection.Blocked/Unblocked/Close notifications.
func (c *Connection) RegisterCallback(ctx context.Context, cb ConnectionCallback) error {
	if !c.shared.isOpen.Load() {
		return newConnectionClosedError(0, "")
	}
	ack := make(chan struct{})
	select {
	case c.shared.mgmtTx <- mgmtRegisterConnCallback{callback: cb, ack: ack}:
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

// OpenChannel allocates a fresh channel id, opens it with the broker, and
// returns a ready-to-use Channel with its dispatcher running.
func (c *Connection) OpenChannel(ctx context.Context) (*Channel, error) {
	if !c.shared.isOpen.Load() {
		return nil, newConnectionClosedError(0, "")
	}

	inbound := make(chan Frame, c.dispatcherDepth)
	cmdCh := make(chan interface{}, 32)
	isOpen := atomic.NewBool(true)

	ack := make(chan registerChannelAck, 1)
	select {
	case c.shared.mgmtTx <- mgmtRegisterChannel{resource: newChannelResource(inbound), ack: ack}:
	case <-ctx.Done():
		return nil, errQueueFull
	}
	var reg registerChannelAck
	select {
	case reg = <-ack:
	case <-ctx.Done():
		// ReaderTask will still process the registration; reap the id once
		// the ack lands so an abandoned OpenChannel doesn't leak a slot.
		// Locals only, so the reaper never roots the Connection.
		runCtx, mgmtTx := c.ctx, c.shared.mgmtTx
		go func() {
			select {
			case late := <-ack:
				if late.ok {
					reapCtx, cancel := context.WithTimeout(context.Background(), detachedCloseTimeout)
					defer cancel()
					unregisterChannel(reapCtx, mgmtTx, late.id, nil)
				}
			case <-runCtx.Done():
			}
		}()
		return nil, errQueueFull
	}
	if !reg.ok {
		return nil, errNoFreeChannel
	}
	id := reg.id

	rpcCtx, done := c.rpcContext(ctx)
	_, err := doRPC(rpcCtx, c.shared.mgmtTx, c.shared.outgoingTx, id, ChannelOpen{}, keyChannelOpenOk)
	done()
	if err != nil {
		unregisterChannel(ctx, c.shared.mgmtTx, id, nil)
		return nil, err
	}

	dispatcher := newChannelDispatcher(id, inbound, cmdCh, c.logger, isOpen)
	runCtx := c.ctx
	c.group.Go(func() error {
		dispatcher.run(runCtx)
		return nil
	})

	ch := &Channel{
		shared: &sharedChannelInner{
			isOpen:    isOpen,
			channelID: id,
			outgoing:  c.shared.outgoingTx,
			mgmtTx:    c.shared.mgmtTx,
			cmdCh:     cmdCh,
		},
		conn: c,
	}
	runtime.SetFinalizer(ch, (*Channel).closeDetached)
	return ch, nil
}

// Close requests and waits for Connection.CloseOk, then tears down the
// writer/reader tasks and every channel dispatcher.
// Idempotent: calling Close on an already-closed connection returns nil
// immediately.
func (c *Connection) Close(ctx context.Context) error {
	if !c.shared.isOpen.CompareAndSwap(true, false) {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	ctx, done := c.rpcContext(ctx)
	defer done()
	_, err := doRPC(ctx, c.shared.mgmtTx, c.shared.outgoingTx, ConnectionChannel, ConnectionClose{
		ReplyCode: ReplySuccess,
		ReplyText: "",
	}, keyConnectionCloseOk)
	c.cancel()
	_ = c.group.Wait()
	return err
}

// closeDetached is for Drop-equivalent call sites with no context to thread
// through (see doc.go): it never blocks the caller and records a failure
// instead of panicking.
func (c *Connection) closeDetached() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedCloseTimeout)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			select {
			case c.errCh <- err:
			default:
			}
		}
	}()
}

// unregisterChannel is a shared teardown helper used both by a failed
// OpenChannel and by Channel.Close.
func unregisterChannel(ctx context.Context, mgmtTx chan<- mgmtCommand, id ChannelId, reason *Error) {
	ack := make(chan struct{})
	select {
	case mgmtTx <- mgmtUnregisterChannel{channelID: id, reason: reason, ack: ack}:
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}
