// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"io"
	"sync"
)

// mockCodec is a loopback FrameCodec driven entirely in-process: frames the
// runtime writes land on fromClient, and a test-controlled goroutine feeds
// synthetic server frames onto toClient for ReadFrame to return. Modeled on
// the scripted-responder mock transport pattern (read/write over channels,
// Close unblocking both sides).
type mockCodec struct {
	toClient      chan Frame
	fromClient    chan Frame
	readErr       chan error
	closeOnce     sync.Once
	closed        chan struct{}
	handshakeDone chan struct{}
}

func newMockCodec() *mockCodec {
	handshakeDone := make(chan struct{})
	close(handshakeDone)
	return &mockCodec{
		toClient:      make(chan Frame, 64),
		fromClient:    make(chan Frame, 64),
		readErr:       make(chan error, 1),
		closed:        make(chan struct{}),
		handshakeDone: handshakeDone,
	}
}

func (m *mockCodec) WriteProtocolHeader() error { return nil }

func (m *mockCodec) ReadFrame() (Frame, error) {
	select {
	case f := <-m.toClient:
		return f, nil
	case err := <-m.readErr:
		return Frame{}, err
	case <-m.closed:
		return Frame{}, io.EOF
	}
}

// failRead makes the next ReadFrame return err, for scripting transport
// failures and undecodable input.
func (m *mockCodec) failRead(err error) {
	select {
	case m.readErr <- err:
	case <-m.closed:
	}
}

func (m *mockCodec) WriteFrame(f Frame) error {
	select {
	case m.fromClient <- f:
		return nil
	case <-m.closed:
		return io.ErrClosedPipe
	}
}

func (m *mockCodec) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// push enqueues a server->client frame without blocking the caller on a
// full channel forever; tests size toClient generously so this is safe.
func (m *mockCodec) push(f Frame) {
	select {
	case m.toClient <- f:
	case <-m.closed:
	}
}

// serverHello plays the server side of the opening handshake: one
// Connection.Start, then waits for StartOk, replies Tune, waits for
// TuneOk+Open, replies OpenOk. Runs on its own goroutine so the caller can
// concurrently call Open on the client side.
func (m *mockCodec) serverHello(channelMax uint16, frameMax uint32, heartbeat uint16, serverProps Table) {
	m.handshakeDone = make(chan struct{})
	go func() {
		defer close(m.handshakeDone)
		m.push(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionStart{
			VersionMajor:     0,
			VersionMinor:     9,
			ServerProperties: serverProps,
			Mechanisms:       "PLAIN",
			Locales:          "en_US",
		}})

		if _, ok := m.next(); !ok { // StartOk
			return
		}

		m.push(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionTune{
			ChannelMax: channelMax,
			FrameMax:   frameMax,
			Heartbeat:  heartbeat,
		}})

		if _, ok := m.next(); !ok { // TuneOk
			return
		}
		if _, ok := m.next(); !ok { // Open
			return
		}

		m.push(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionOpenOk{}})
	}()
}

// next reads the next client->server frame, or reports ok=false if the
// codec was closed first.
func (m *mockCodec) next() (Frame, bool) {
	select {
	case f := <-m.fromClient:
		return f, true
	case <-m.closed:
		return Frame{}, false
	}
}

// autoRespond runs a background loop that answers Channel.Open,
// Channel.Close and Connection.Close with their *Ok counterparts, and
// forwards anything else to hook (if non-nil) for test-specific handling.
// Exits when the codec closes.
func (m *mockCodec) autoRespond(hook func(f Frame)) {
	handshakeDone := m.handshakeDone
	go func() {
		select {
		case <-handshakeDone:
		case <-m.closed:
			return
		}
		for {
			f, ok := m.next()
			if !ok {
				return
			}
			switch req := f.Method.(type) {
			case ChannelOpen:
				m.push(Frame{Kind: FrameMethod, Channel: f.Channel, Method: ChannelOpenOk{}})
			case ChannelClose:
				m.push(Frame{Kind: FrameMethod, Channel: f.Channel, Method: ChannelCloseOk{}})
			case ConnectionClose:
				m.push(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionCloseOk{}})
			default:
				_ = req
				if hook != nil {
					hook(f)
				}
			}
		}
	}()
}
