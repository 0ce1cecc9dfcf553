// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRegistry_AllocateWrapsAndReusesFreedIds(t *testing.T) {
	r := newChannelRegistry(3)

	id1, ok := r.allocate()
	require.True(t, ok)
	assert.Equal(t, ChannelId(1), id1)
	r.insert(id1, newChannelResource(nil))

	id2, ok := r.allocate()
	require.True(t, ok)
	assert.Equal(t, ChannelId(2), id2)
	r.insert(id2, newChannelResource(nil))

	id3, ok := r.allocate()
	require.True(t, ok)
	assert.Equal(t, ChannelId(3), id3)
	r.insert(id3, newChannelResource(nil))

	_, ok = r.allocate()
	assert.False(t, ok, "registry is exhausted at channelMax")

	r.remove(id2)
	reused, ok := r.allocate()
	require.True(t, ok)
	assert.Equal(t, id2, reused, "allocate wraps around to the freed slot")
}

func TestChannelRegistry_RegisterResponderRejectsDuplicate(t *testing.T) {
	r := newChannelRegistry(4)
	r.insert(1, newChannelResource(nil))

	key := MethodKey{60, 71}
	require.NoError(t, r.registerResponder(1, key, make(chan rpcResult, 1)))

	err := r.registerResponder(1, key, make(chan rpcResult, 1))
	require.Error(t, err)
	var amqpErr *Error
	require.ErrorAs(t, err, &amqpErr)
	assert.Equal(t, KindDuplicateResponder, amqpErr.Kind)
}

func TestChannelRegistry_CancelResponderIgnoresStaleSlot(t *testing.T) {
	r := newChannelRegistry(4)
	r.insert(1, newChannelResource(nil))

	key := MethodKey{60, 71}
	oldSlot := make(chan rpcResult, 1)
	require.NoError(t, r.registerResponder(1, key, oldSlot))

	// Simulate a cancellation racing a fulfil-and-reregister: the old slot
	// is no longer the one installed, so cancelling it must not evict the
	// newer registration.
	res, _ := r.get(1)
	delete(res.waiters, key)
	newSlot := make(chan rpcResult, 1)
	require.NoError(t, r.registerResponder(1, key, newSlot))

	r.cancelResponder(1, key, oldSlot)

	res, _ = r.get(1)
	assert.Same(t, newSlot, res.waiters[key], "cancelling a stale slot must not remove the current waiter")
}

func TestChannelRegistry_FailAllWaiters(t *testing.T) {
	r := newChannelRegistry(4)
	res := newChannelResource(nil)
	r.insert(1, res)

	slotA := make(chan rpcResult, 1)
	slotB := make(chan rpcResult, 1)
	require.NoError(t, r.registerResponder(1, MethodKey{60, 71}, slotA))
	require.NoError(t, r.registerResponder(1, MethodKey{20, 41}, slotB))

	reason := newChannelClosedError(1, 200, "")
	r.failAllWaiters(res, reason)

	a := <-slotA
	b := <-slotB
	assert.Equal(t, reason, a.err)
	assert.Equal(t, reason, b.err)
	assert.Empty(t, res.waiters)
}
