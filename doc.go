// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

// Package amqp implements the connection-and-channel runtime of an AMQP
// 0-9-1 client: a Connection multiplexes synchronous RPCs and asynchronous
// deliveries for any number of Channels over one FrameCodec.
//
// Explicit Close is the supported teardown path for both Connections and
// Channels. As a last-resort safety net, Open and OpenChannel register a
// runtime.SetFinalizer so a handle a caller forgot to Close still gets a
// background, non-blocking Close attempt before its memory is reclaimed;
// failures from that path are recorded on Connection.Errors() rather than
// panicking, since a finalizer goroutine has no caller to return an error
// to. Close clears its own finalizer, so calling it explicitly is always
// the cheaper path.
package amqp
