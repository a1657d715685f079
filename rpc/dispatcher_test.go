// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/conn"
	"github.com/perfkit/perfkit-go/transport"
	"github.com/perfkit/perfkit-go/transport/transporttest"
	"github.com/perfkit/perfkit-go/wire"
)

func newConnectedDispatcher(t *testing.T) (*Dispatcher, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.New()
	c := conn.New(fake)
	require.NoError(t, c.Connect(context.Background()))
	d := New(c)
	d.Start()
	t.Cleanup(d.Stop)
	return d, fake
}

func echoRequest(payload string) Request {
	return Request{
		ObjectPath: "/org/perfkit/Agent/Manager",
		Interface:  "org.perfkit.Agent.Manager",
		Member:     "Ping",
		Encode: func(w *wire.Writer) {
			w.WriteString(1, payload)
		},
	}
}

func decodeEchoReply(r *wire.Reader) (string, error) {
	var out string
	err := DecodeMessage(r, map[uint32]FieldHandler{
		1: func(r *wire.Reader, _ wire.Tag) error {
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			out = s
			return nil
		},
	})
	return out, err
}

func TestCallAsyncSendsFrameWithAllocatedToken(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	sent := fake.LastSent()
	require.NotNil(t, sent)
	assert.Equal(t, async.token, sent.Token)
	assert.Equal(t, "Ping", sent.Member)
	assert.Equal(t, transport.KindCall, sent.Kind)
}

func TestFinishDecodesSuccessfulReply(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	w := wire.NewWriter()
	w.WriteString(1, "pong")
	fake.PushReply(&transport.Frame{Token: async.token, Kind: transport.KindReply, Body: w.Bytes()})

	got, err := async.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
}

func TestFinishTurnsErrorFrameIntoRpcError(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	fake.PushReply(&transport.Frame{
		Token:     async.token,
		Kind:      transport.KindError,
		ErrorName: "org.perfkit.Agent.Error.NotFound",
		Body:      []byte("no such channel"),
	})

	_, err = async.Finish(context.Background())
	require.Error(t, err)
	var rpcErr *perfkit.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "org.perfkit.Agent.Error.NotFound", rpcErr.Name)
	assert.Equal(t, "no such channel", rpcErr.Detail)
}

func TestFinishTwiceFailsWithInvalidState(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	w := wire.NewWriter()
	w.WriteString(1, "pong")
	fake.PushReply(&transport.Frame{Token: async.token, Kind: transport.KindReply, Body: w.Bytes()})

	_, err = async.Finish(context.Background())
	require.NoError(t, err)

	_, err = async.Finish(context.Background())
	assert.ErrorIs(t, err, perfkit.ErrInvalidState)
}

func TestCancelCompletesWithCancelledAtMostOnce(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	require.NoError(t, async.Cancel())
	assert.True(t, fake.WasCancelled(async.token))

	_, err = async.Finish(context.Background())
	assert.ErrorIs(t, err, perfkit.ErrCancelled)

	// A second Cancel call, after the handle already completed, must not
	// re-send on the transport or touch the already-delivered completion.
	require.NoError(t, async.Cancel())
}

func TestLateReplyAfterCancelIsDroppedSilently(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	async, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)
	require.NoError(t, async.Cancel())

	// The agent's reply arrives after cancellation raced ahead of it; it
	// must find no pending entry and be dropped rather than delivered.
	w := wire.NewWriter()
	w.WriteString(1, "too late")
	fake.PushReply(&transport.Frame{Token: async.token, Kind: transport.KindReply, Body: w.Bytes()})

	time.Sleep(10 * time.Millisecond) // let the reply pump observe and drop it

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = async.Finish(ctx)
	assert.ErrorIs(t, err, perfkit.ErrCancelled, "Finish must see the Cancelled completion, never the dropped late reply")
}

func TestDisconnectCompletesAllPendingWithDisconnected(t *testing.T) {
	d, _ := newConnectedDispatcher(t)

	var asyncs []*Async[string]
	for i := 0; i < 5; i++ {
		a, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
		require.NoError(t, err)
		asyncs = append(asyncs, a)
	}

	d.Disconnect(perfkit.ErrDisconnected)

	for _, a := range asyncs {
		_, err := a.Finish(context.Background())
		assert.ErrorIs(t, err, perfkit.ErrDisconnected)
	}
}

func TestDecodeMessageRejectsUnexpectedField(t *testing.T) {
	w := wire.NewWriter()
	w.WriteString(1, "ok")
	w.WriteVarintU32(2, 7) // field 2 has no handler below

	var got string
	err := DecodeMessage(wire.NewReader(w.Bytes()), map[uint32]FieldHandler{
		1: func(r *wire.Reader, _ wire.Tag) error {
			s, err := r.ReadString()
			got = s
			return err
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, perfkit.ErrProtocol)
	assert.Equal(t, "ok", got, "the handled field must still decode before the unhandled one is rejected")
}

func TestTransportLossFailsAllPendingCalls(t *testing.T) {
	d, fake := newConnectedDispatcher(t)

	a, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
	require.NoError(t, err)

	fake.SimulateLoss()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = a.Finish(ctx)
	assert.ErrorIs(t, err, perfkit.ErrDisconnected, "a transport loss must fail pending calls the same as an explicit Disconnect")
}

func TestTokensNeverReusedWhileOutstanding(t *testing.T) {
	d, _ := newConnectedDispatcher(t)

	seen := make(map[uint64]bool)
	for i := 0; i < 20; i++ {
		a, err := CallAsync(d, echoRequest("hi"), decodeEchoReply)
		require.NoError(t, err)
		assert.False(t, seen[a.token], "token %d reused while prior calls still outstanding", a.token)
		seen[a.token] = true
	}
}
