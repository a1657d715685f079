// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/conn"
	"github.com/perfkit/perfkit-go/rpc"
	"github.com/perfkit/perfkit-go/transport"
	"github.com/perfkit/perfkit-go/transport/transporttest"
	"github.com/perfkit/perfkit-go/wire"
)

func TestManagerMethodOnDisconnectedConnectionNeverReachesTransport(t *testing.T) {
	fake := transporttest.New()
	c := conn.New(fake)
	d := rpc.New(c)
	m := NewManager(c, d)

	_, err := m.Ping(context.Background(), "hi")
	assert.ErrorIs(t, err, perfkit.ErrInvalidState)
	assert.Empty(t, fake.Sent, "no frame should have been sent while disconnected")
}

func TestManagerPingRoundTrips(t *testing.T) {
	fake := transporttest.New()
	c := conn.New(fake)
	require.NoError(t, c.Connect(context.Background()))
	d := rpc.New(c)
	d.Start()
	t.Cleanup(d.Stop)
	m := NewManager(c, d)

	go func() {
		sent := waitForSend(t, fake)
		w := wire.NewWriter()
		w.WriteString(1, "pong")
		fake.PushReply(&transport.Frame{Token: sent.Token, Kind: transport.KindReply, Body: w.Bytes()})
	}()

	got, err := m.Ping(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
}

func TestChannelStartSendsExpectedPath(t *testing.T) {
	fake := transporttest.New()
	c := conn.New(fake)
	require.NoError(t, c.Connect(context.Background()))
	d := rpc.New(c)
	d.Start()
	t.Cleanup(d.Stop)
	ch := NewChannel(c, d, 7)

	go func() {
		sent := waitForSend(t, fake)
		fake.PushReply(&transport.Frame{Token: sent.Token, Kind: transport.KindReply})
	}()

	require.NoError(t, ch.Start(context.Background()))
	assert.Equal(t, "/org/perfkit/Agent/Channel/7", fake.LastSent().ObjectPath)
	assert.Equal(t, "Start", fake.LastSent().Member)
}

func waitForSend(t *testing.T, fake *transporttest.Fake) *transport.Frame {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f := fake.LastSent(); f != nil {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a sent frame")
	return nil
}
