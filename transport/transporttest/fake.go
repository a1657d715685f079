// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transporttest provides an in-memory transport.Transport for
// exercising the dispatcher, connection lifecycle, and subscription
// inbox without a real message bus.
package transporttest

import (
	"context"
	"sync"

	"github.com/perfkit/perfkit-go/transport"
)

// Fake is a transport.Transport that records every sent frame and every
// cancelled token, and lets tests push replies and deliveries on demand.
type Fake struct {
	mu sync.Mutex

	ConnectErr error
	connected  bool

	Sent      []*transport.Frame
	Cancelled []uint64

	replies    chan *transport.Frame
	deliveries chan *transport.Frame

	lostOnce sync.Once
	lost     chan struct{}
}

// New returns a disconnected Fake.
func New() *Fake {
	return &Fake{
		replies:    make(chan *transport.Frame, 64),
		deliveries: make(chan *transport.Frame, 64),
		lost:       make(chan struct{}),
	}
}

func (f *Fake) Connect(ctx context.Context) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) Send(ctx context.Context, fr *transport.Frame) error {
	f.mu.Lock()
	f.Sent = append(f.Sent, fr)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Cancel(token uint64) error {
	f.mu.Lock()
	f.Cancelled = append(f.Cancelled, token)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Replies() <-chan *transport.Frame { return f.replies }

func (f *Fake) Deliveries() <-chan *transport.Frame { return f.deliveries }

func (f *Fake) Lost() <-chan struct{} { return f.lost }

// SimulateLoss closes the Lost() channel, as if the underlying
// connection had dropped out from under the transport.
func (f *Fake) SimulateLoss() { f.lostOnce.Do(func() { close(f.lost) }) }

// PushReply delivers fr on the Replies() channel, as if the agent had
// answered a call.
func (f *Fake) PushReply(fr *transport.Frame) { f.replies <- fr }

// PushDelivery delivers fr on the Deliveries() channel, as if the agent
// had pushed a subscription frame.
func (f *Fake) PushDelivery(fr *transport.Frame) { f.deliveries <- fr }

// LastSent returns the most recently sent frame, or nil.
func (f *Fake) LastSent() *transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return f.Sent[len(f.Sent)-1]
}

// WasCancelled reports whether Cancel was called with token.
func (f *Fake) WasCancelled(token uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Cancelled {
		if t == token {
			return true
		}
	}
	return false
}
