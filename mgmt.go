// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

// Management commands flow over a single bounded channel into ReaderTask,
// the sole mutator of channelRegistry. Each carries its own one-shot ack.

// mgmtRegisterChannel allocates (channelID == nil) or installs at a fixed
// id (channelID != nil) a channelResource. The ack carries the resulting
// id, or ok=false on allocation failure / occupied-id conflict.
type mgmtRegisterChannel struct {
	channelID *ChannelId
	resource  *channelResource
	ack       chan registerChannelAck
}

type registerChannelAck struct {
	id ChannelId
	ok bool
}

// mgmtUnregisterChannel removes a channel's resource entry; any pending
// waiters are failed with ChannelClosed before the ack fires.
type mgmtUnregisterChannel struct {
	channelID ChannelId
	reason    *Error
	ack       chan struct{}
}

// mgmtRegisterResponder attaches an RPC waiter for (channelID, key).
type mgmtRegisterResponder struct {
	channelID ChannelId
	key       MethodKey
	slot      chan rpcResult
	ack       chan error
}

// mgmtCancelResponder asks ReaderTask to drop a waiter whose caller gave up
// (context cancelled) before a response arrived, so the registry entry
// doesn't linger and block a future registration for the same key. No
// ack: it is fire-and-forget cleanup. slot disambiguates a stale
// cancellation from a newer registration that reused the same key after
// the old one was already fulfilled and removed.
type mgmtCancelResponder struct {
	channelID ChannelId
	key       MethodKey
	slot      chan rpcResult
}

// mgmtRegisterConnCallback installs/replaces the connection-level callback.
type mgmtRegisterConnCallback struct {
	callback ConnectionCallback
	ack      chan struct{}
}

// mgmtCommand is the union of the above, sent over Connection's mgmtCh.
type mgmtCommand interface {
	isMgmtCommand()
}

func (mgmtRegisterChannel) isMgmtCommand()      {}
func (mgmtUnregisterChannel) isMgmtCommand()    {}
func (mgmtRegisterResponder) isMgmtCommand()    {}
func (mgmtCancelResponder) isMgmtCommand()      {}
func (mgmtRegisterConnCallback) isMgmtCommand() {}
