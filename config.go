// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Default tuning values used when both the client preference and the
// server's proposal for a field are 0.
const (
	DefaultChannelMax uint16        = 2047
	DefaultFrameMax   uint32        = 131072
	DefaultHeartbeat  time.Duration = 60 * time.Second
)

// TuningPreferences are the client's requested limits for Connection.Tune
// negotiation. A zero field means "no preference / server's choice".
type TuningPreferences struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  time.Duration
}

// negotiate picks a Connection.Tune field: the smaller of the two non-zero
// proposals wins; if exactly one side proposes 0 the other side's value
// wins; if both propose 0 the module default is used.
func negotiateUint16(client, server uint16, def uint16) uint16 {
	switch {
	case client == 0 && server == 0:
		return def
	case client == 0:
		return server
	case server == 0:
		return client
	case client < server:
		return client
	default:
		return server
	}
}

func negotiateUint32(client, server uint32, def uint32) uint32 {
	switch {
	case client == 0 && server == 0:
		return def
	case client == 0:
		return server
	case server == 0:
		return client
	case client < server:
		return client
	default:
		return server
	}
}

// negotiateHeartbeat follows the same rule as the other tuning fields: when
// both sides propose 0 the result is DefaultHeartbeat, not 0.
func negotiateHeartbeat(client, server time.Duration) time.Duration {
	switch {
	case client == 0 && server == 0:
		return DefaultHeartbeat
	case client == 0:
		return server
	case server == 0:
		return client
	case client < server:
		return client
	default:
		return server
	}
}

// Credentials carries the SASL mechanisms the client is willing to use, in
// preference order. The vhost to request at Connection.Open is Config.Vhost.
type Credentials struct {
	SASL []Authentication
}

// Authentication produces a SASL response for a chosen mechanism, mirroring
// streadway/amqp's Authentication interface.
type Authentication interface {
	Mechanism() string
	Response() string
}

// PlainAuth implements the SASL PLAIN mechanism: "\0user\0pass".
type PlainAuth struct {
	Username string
	Password string
}

func (a *PlainAuth) Mechanism() string { return "PLAIN" }
func (a *PlainAuth) Response() string {
	return "\x00" + a.Username + "\x00" + a.Password
}

// AMQPlainAuth implements RabbitMQ's AMQPLAIN mechanism, which carries the
// credentials as a field table instead of a delimited string.
type AMQPlainAuth struct {
	Username string
	Password string
}

func (a *AMQPlainAuth) Mechanism() string { return "AMQPLAIN" }
func (a *AMQPlainAuth) Response() string {
	// The field-table encoding of {LOGIN, PASSWORD} is the codec's
	// concern; the core only needs a stable, non-empty response token to
	// carry through StartOk. Real encoding happens in the FrameCodec.
	return a.Username + "\x00" + a.Password
}

// pickSASLMechanism selects the first client-supported mechanism that the
// server advertised, preserving the client's preference order.
func pickSASLMechanism(client []Authentication, serverMechanisms []string) (Authentication, bool) {
	offered := make(map[string]bool, len(serverMechanisms))
	for _, m := range serverMechanisms {
		offered[m] = true
	}
	for _, auth := range client {
		if offered[auth.Mechanism()] {
			return auth, true
		}
	}
	return nil, false
}

// Config bundles everything Open needs beyond the transport/codec, mirroring
// the shape of streadway/amqp's Config.
type Config struct {
	Credentials Credentials
	Vhost       string
	Tuning      TuningPreferences

	// HandshakeTimeout bounds the whole opening handshake, from the
	// protocol header to Connection.OpenOk. Zero means no timeout.
	HandshakeTimeout time.Duration

	// RPCTimeout is the default timeout applied to synchronous RPCs when
	// the caller doesn't supply one via context. Zero means wait
	// indefinitely.
	RPCTimeout time.Duration

	// Logger receives structured diagnostics from ReaderTask and the
	// ChannelDispatchers (dropped frames, recovered callback panics).
	// Defaults to logrus.StandardLogger().
	Logger *logrus.Logger

	// Outbound/management/dispatcher queue depths. Zero selects the
	// suggested default for that queue.
	OutgoingQueueDepth   int
	ManagementQueueDepth int
	DispatcherQueueDepth int
}

const (
	defaultOutgoingQueueDepth   = 256
	defaultManagementQueueDepth = 128
	defaultDispatcherQueueDepth = 256
)

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.OutgoingQueueDepth == 0 {
		cfg.OutgoingQueueDepth = defaultOutgoingQueueDepth
	}
	if cfg.ManagementQueueDepth == 0 {
		cfg.ManagementQueueDepth = defaultManagementQueueDepth
	}
	if cfg.DispatcherQueueDepth == 0 {
		cfg.DispatcherQueueDepth = defaultDispatcherQueueDepth
	}
	if cfg.Vhost == "" {
		cfg.Vhost = "/"
	}
	return &cfg
}
