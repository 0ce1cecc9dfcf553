// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opaque request/response pairs standing in for class methods the core
// never defines itself (it only routes on MethodKey).
type queueDeclare struct{ Queue string }

func (queueDeclare) Key() MethodKey { return MethodKey{50, 10} }

type queueDeclareOk struct{}

func (queueDeclareOk) Key() MethodKey { return MethodKey{50, 11} }

type exchangeDeclare struct{ Exchange string }

func (exchangeDeclare) Key() MethodKey { return MethodKey{40, 10} }

type exchangeDeclareOk struct{}

func (exchangeDeclareOk) Key() MethodKey { return MethodKey{40, 11} }

func openTestChannel(t *testing.T, channelMax uint16) (*Connection, *Channel, *mockCodec) {
	t.Helper()
	codec := newMockCodec()
	codec.serverHello(channelMax, 4096, 0, nil)
	codec.autoRespond(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Open(ctx, codec, testConfig())
	require.NoError(t, err)

	ch, err := conn.OpenChannel(ctx)
	require.NoError(t, err)
	return conn, ch, codec
}

func TestChannel_Get_NonEmptyQueueAssemblesDeliveredMessage(t *testing.T) {
	conn, ch, codec := openTestChannel(t, 4)
	defer conn.Close(context.Background())

	go func() {
		f, ok := codec.next() // Basic.Get
		if !ok {
			return
		}
		req, ok := f.Method.(BasicGet)
		if !ok || req.Queue != "orders" {
			return
		}
		codec.push(Frame{Kind: FrameMethod, Channel: f.Channel, Method: BasicGetOk{}})
		codec.push(Frame{Kind: FrameContentHeader, Channel: f.Channel, Header: &ContentHeader{
			BodySize:   5,
			Properties: Table{"content_type": "text/plain"},
		}})
		codec.push(Frame{Kind: FrameContentBody, Channel: f.Channel, Body: []byte("hel")})
		codec.push(Frame{Kind: FrameContentBody, Channel: f.Channel, Body: []byte("lo")})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ch.Get(ctx, "orders", false)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, []byte("hello"), msg.Body)
	assert.Equal(t, "text/plain", msg.Properties["content_type"])
}

func TestChannel_Get_EmptyQueueReturnsNil(t *testing.T) {
	conn, ch, codec := openTestChannel(t, 4)
	defer conn.Close(context.Background())

	go func() {
		f, ok := codec.next() // Basic.Get
		if !ok {
			return
		}
		codec.push(Frame{Kind: FrameMethod, Channel: f.Channel, Method: BasicGetEmpty{}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ch.Get(ctx, "orders", false)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestChannel_SendContent_ChunksBodyAcrossFrameMax(t *testing.T) {
	conn, ch, codec := openTestChannel(t, 4)
	defer conn.Close(context.Background())

	body := []byte("0123456789")
	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.SendContent(context.Background(), BasicGet{Queue: "q"}, ContentHeader{}, body, 4)
	}()

	method, ok := codec.next()
	require.True(t, ok)
	assert.Equal(t, FrameMethod, method.Kind)

	header, ok := codec.next()
	require.True(t, ok)
	require.Equal(t, FrameContentHeader, header.Kind)
	assert.EqualValues(t, len(body), header.Header.BodySize)
	assert.Equal(t, keyBasicGet.ClassID, header.Header.ClassID)

	var reassembled []byte
	for len(reassembled) < len(body) {
		chunk, ok := codec.next()
		require.True(t, ok)
		require.Equal(t, FrameContentBody, chunk.Kind)
		assert.LessOrEqual(t, len(chunk.Body), 4)
		reassembled = append(reassembled, chunk.Body...)
	}
	assert.Equal(t, body, reassembled)
	require.NoError(t, <-errCh)
}

func TestChannel_SendContent_EmptyBodySendsNoBodyFrames(t *testing.T) {
	conn, ch, codec := openTestChannel(t, 4)
	defer conn.Close(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.SendContent(context.Background(), BasicGet{Queue: "q"}, ContentHeader{}, nil, 4)
	}()

	_, ok := codec.next() // method
	require.True(t, ok)
	header, ok := codec.next() // header
	require.True(t, ok)
	assert.EqualValues(t, 0, header.Header.BodySize)
	require.NoError(t, <-errCh)

	select {
	case extra, ok := <-codec.fromClient:
		t.Fatalf("unexpected extra frame after empty body: %+v (ok=%v)", extra, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannel_RegisterCallback_ReceivesAsyncDeliver(t *testing.T) {
	conn, ch, codec := openTestChannel(t, 4)
	defer conn.Close(context.Background())

	delivered := make(chan DeliveredMessage, 1)
	cb := &recordingChannelCallback{deliver: delivered}
	require.NoError(t, ch.RegisterCallback(context.Background(), cb))

	codec.push(Frame{Kind: FrameMethod, Channel: ch.ID(), Method: BasicDeliver{ConsumerTag: "ctag"}})
	codec.push(Frame{Kind: FrameContentHeader, Channel: ch.ID(), Header: &ContentHeader{BodySize: 2}})
	codec.push(Frame{Kind: FrameContentBody, Channel: ch.ID(), Body: []byte("hi")})

	select {
	case msg := <-delivered:
		assert.Equal(t, []byte("hi"), msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never received the delivery")
	}
}

func TestChannel_ConcurrentRPCs_RepliesRouteByMethodKey(t *testing.T) {
	codec := newMockCodec()
	codec.serverHello(4, 4096, 0, nil)

	// Answer both declares only once both have arrived, in reverse arrival
	// order, so each caller's reply genuinely crosses the other's request.
	var mu sync.Mutex
	var pending []Frame
	codec.autoRespond(func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		pending = append(pending, f)
		if len(pending) < 2 {
			return
		}
		for i := len(pending) - 1; i >= 0; i-- {
			req := pending[i]
			switch req.Method.(type) {
			case queueDeclare:
				codec.push(Frame{Kind: FrameMethod, Channel: req.Channel, Method: queueDeclareOk{}})
			case exchangeDeclare:
				codec.push(Frame{Kind: FrameMethod, Channel: req.Channel, Method: exchangeDeclareOk{}})
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Open(ctx, codec, testConfig())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	ch, err := conn.OpenChannel(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Method, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = ch.Call(ctx, queueDeclare{Queue: "q"}, MethodKey{50, 11})
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = ch.Call(ctx, exchangeDeclare{Exchange: "x"}, MethodKey{40, 11})
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.IsType(t, queueDeclareOk{}, results[0])
	assert.IsType(t, exchangeDeclareOk{}, results[1])
}

func TestServerInitiatedChannelClose_KeepsConnectionOpen(t *testing.T) {
	codec := newMockCodec()
	codec.serverHello(4, 4096, 0, nil)

	closeOkSeen := make(chan ChannelId, 1)
	codec.autoRespond(func(f Frame) {
		if _, ok := f.Method.(ChannelCloseOk); ok {
			closeOkSeen <- f.Channel
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Open(ctx, codec, testConfig())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	ch, err := conn.OpenChannel(ctx)
	require.NoError(t, err)

	closed := make(chan [2]interface{}, 1)
	cb := &recordingChannelCallback{closed: closed}
	require.NoError(t, ch.RegisterCallback(ctx, cb))

	codec.push(Frame{Kind: FrameMethod, Channel: ch.ID(), Method: ChannelClose{
		ReplyCode: 404, ReplyText: "NOT_FOUND",
	}})

	select {
	case got := <-closed:
		assert.Equal(t, uint16(404), got[0])
		assert.Equal(t, "NOT_FOUND", got[1])
	case <-time.After(2 * time.Second):
		t.Fatal("channel callback never saw the server close")
	}

	select {
	case id := <-closeOkSeen:
		assert.Equal(t, ch.ID(), id)
	case <-time.After(2 * time.Second):
		t.Fatal("client never replied Channel.CloseOk")
	}

	require.Eventually(t, func() bool { return !ch.IsOpen() }, time.Second, 5*time.Millisecond)
	assert.True(t, conn.IsOpen(), "a channel-level close must not take the connection down")
	require.NoError(t, ch.Close(context.Background()), "closing an already server-closed channel is a no-op")
}

// recordingChannelCallback forwards Deliver and Close to channels and no-ops
// everything else, for tests that only care about one callback hook.
type recordingChannelCallback struct {
	NopChannelCallback
	deliver chan DeliveredMessage
	closed  chan [2]interface{}
}

func (c *recordingChannelCallback) Deliver(msg DeliveredMessage) {
	if c.deliver != nil {
		c.deliver <- msg
	}
}

func (c *recordingChannelCallback) Close(replyCode uint16, replyText string) {
	if c.closed != nil {
		c.closed <- [2]interface{}{replyCode, replyText}
	}
}
