// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

// rpcResult is what a registered waiter slot eventually receives: either the
// matching response frame, or a terminal error (channel/connection closed).
type rpcResult struct {
	frame Frame
	err   *Error
}

// channelResource is one open channel's RPC waiters plus its optional
// delivery dispatcher. Only ever touched by ReaderTask, which owns the
// ChannelRegistry exclusively.
type channelResource struct {
	waiters    map[MethodKey]chan rpcResult
	dispatcher chan Frame // nil for channel 0
}

func newChannelResource(dispatcher chan Frame) *channelResource {
	return &channelResource{
		waiters:    make(map[MethodKey]chan rpcResult),
		dispatcher: dispatcher,
	}
}

// channelRegistry is the state shared between ReaderTask and the façades.
// It is mutated only by ReaderTask in response to management commands
// arriving over mgmtCh; everyone else only sends.
type channelRegistry struct {
	channels   map[ChannelId]*channelResource
	nextID     ChannelId
	channelMax ChannelId
	callback   ConnectionCallback
}

func newChannelRegistry(channelMax uint16) *channelRegistry {
	return &channelRegistry{
		channels:   make(map[ChannelId]*channelResource),
		nextID:     1,
		channelMax: ChannelId(channelMax),
	}
}

// allocate scans nextID..=channelMax then 1..nextID for the first free
// slot, and rolls nextID forward past it.
func (r *channelRegistry) allocate() (ChannelId, bool) {
	if r.channelMax == 0 {
		return 0, false
	}
	try := func(id ChannelId) (ChannelId, bool) {
		if _, taken := r.channels[id]; !taken {
			next := id + 1
			if next > r.channelMax {
				next = 1
			}
			r.nextID = next
			return id, true
		}
		return 0, false
	}
	for id := r.nextID; id <= r.channelMax; id++ {
		if found, ok := try(id); ok {
			return found, true
		}
	}
	for id := ChannelId(1); id < r.nextID; id++ {
		if found, ok := try(id); ok {
			return found, true
		}
	}
	return 0, false
}

func (r *channelRegistry) insert(id ChannelId, res *channelResource) {
	r.channels[id] = res
}

func (r *channelRegistry) get(id ChannelId) (*channelResource, bool) {
	res, ok := r.channels[id]
	return res, ok
}

func (r *channelRegistry) remove(id ChannelId) (*channelResource, bool) {
	res, ok := r.channels[id]
	delete(r.channels, id)
	return res, ok
}

// registerResponder attaches a waiter, rejecting a duplicate registration
// for the same (channel, key) pair.
func (r *channelRegistry) registerResponder(id ChannelId, key MethodKey, slot chan rpcResult) error {
	res, ok := r.channels[id]
	if !ok {
		return newChannelClosedError(id, 0, "channel not registered")
	}
	if _, exists := res.waiters[key]; exists {
		return newDuplicateResponderError(id, key)
	}
	res.waiters[key] = slot
	return nil
}

// cancelResponder removes the waiter at (id, key) only if it is still the
// exact slot the caller registered, so a stale cancellation can never evict
// a newer registration that reused the same key.
func (r *channelRegistry) cancelResponder(id ChannelId, key MethodKey, slot chan rpcResult) {
	res, ok := r.channels[id]
	if !ok {
		return
	}
	if cur, exists := res.waiters[key]; exists && cur == slot {
		delete(res.waiters, key)
	}
}

// failAllWaiters fails and removes every pending waiter on a channel,
// used when the channel or connection closes.
func (r *channelRegistry) failAllWaiters(res *channelResource, err *Error) {
	for key, slot := range res.waiters {
		slot <- rpcResult{err: err}
		delete(res.waiters, key)
	}
}

// removeAll detaches every registered channel resource, used during
// connection shutdown.
func (r *channelRegistry) removeAll() map[ChannelId]*channelResource {
	all := r.channels
	r.channels = make(map[ChannelId]*channelResource)
	return all
}
