// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"errors"
	"strings"
	"time"
)

var errNoMechanism = errors.New("amqp: no supported SASL mechanism offered by server")

// expectMethod reads the next frame off codec and type-asserts its method
// to T, used for the strictly sequential reads of the opening handshake
// before ReaderTask exists to route anything.
func expectMethod[T Method](codec FrameCodec) (T, error) {
	var zero T
	f, err := codec.ReadFrame()
	if err != nil {
		return zero, err
	}
	if f.Kind != FrameMethod {
		return zero, errUnexpectedHandshakeFrame
	}
	m, ok := f.Method.(T)
	if !ok {
		return zero, errUnexpectedHandshakeFrame
	}
	return m, nil
}

var errUnexpectedHandshakeFrame = errors.New("amqp: unexpected frame during handshake")

// readThroughSecure tolerates zero or more Connection.Secure/SecureOk
// rounds before the mandatory Connection.Tune.
func readThroughSecure(codec FrameCodec, auth Authentication) (ConnectionTune, error) {
	for {
		f, err := codec.ReadFrame()
		if err != nil {
			return ConnectionTune{}, newHandshakeError("secure-or-tune", err)
		}
		if f.Kind != FrameMethod {
			return ConnectionTune{}, newHandshakeError("secure-or-tune", errUnexpectedHandshakeFrame)
		}
		switch m := f.Method.(type) {
		case ConnectionTune:
			return m, nil
		case ConnectionSecure:
			if err := codec.WriteFrame(Frame{Kind: FrameMethod, Channel: ConnectionChannel, Method: ConnectionSecureOk{
				Response: auth.Response(),
			}}); err != nil {
				return ConnectionTune{}, newHandshakeError("secure-ok", err)
			}
		default:
			return ConnectionTune{}, newHandshakeError("secure-or-tune", errUnexpectedHandshakeFrame)
		}
	}
}

func splitMechanisms(s string) []string {
	return strings.Fields(s)
}

// toDuration/fromDuration convert the wire's uint16-seconds heartbeat field
// to/from time.Duration, the unit the rest of the package negotiates in.
func toDuration(seconds uint16) time.Duration { return time.Duration(seconds) * time.Second }
func fromDuration(d time.Duration) uint16     { return uint16(d / time.Second) }
