// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natstransport adapts the nats.go client to the
// transport.Transport interface. It is a concrete, replaceable
// transport: the reference deployment connects to a well-known service
// name on a session-scoped message bus, and both the bus and the
// service name are transport-level policy that can be swapped out.
//
// Connection management (options, reconnect/error handlers, subscription
// bookkeeping under a mutex) is adapted from the ClusterCockpit NATS
// client wrapper; this package narrows that general pub/sub client down to
// exactly what the RPC dispatcher and subscription inbox need: per-call
// reply correlation via private inboxes, and one shared wildcard
// subscription for pushed subscription deliveries.
package natstransport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/perfkit/perfkit-go/pkg/log"
	"github.com/perfkit/perfkit-go/transport"
)

// Config configures the NATS connection. Address is required; the
// remaining fields mirror the optional authentication methods the
// ClusterCockpit NATS client supports.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string

	// DeliverySubject is the wildcard subject this transport subscribes
	// to for subscription push deliveries, opened once at Connect. It
	// should end in ">" so it matches every subscription id the agent
	// addresses under it, e.g. "org.perfkit.Agent.Subscription.>".
	DeliverySubject string
}

// Transport implements transport.Transport over a NATS connection.
type Transport struct {
	cfg Config

	mu        sync.Mutex
	conn      *nats.Conn
	replySubs map[uint64]*nats.Subscription // token -> private reply-inbox subscription
	deliverer *nats.Subscription

	replies    chan *transport.Frame
	deliveries chan *transport.Frame

	lostOnce sync.Once
	lost     chan struct{}
}

// New returns a Transport that has not yet connected.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:        cfg,
		replySubs:  make(map[uint64]*nats.Subscription),
		replies:    make(chan *transport.Frame, 64),
		deliveries: make(chan *transport.Frame, 64),
		lost:       make(chan struct{}),
	}
}

// Connect dials the configured NATS server and opens the shared delivery
// subscription.
func (t *Transport) Connect(ctx context.Context) error {
	var opts []nats.Option
	if t.cfg.CredsFilePath == "" && t.cfg.Username != "" && t.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(t.cfg.Username, t.cfg.Password))
	}
	if t.cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(t.cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("perfkit: nats disconnected: %v", err)
		}
		t.lostOnce.Do(func() { close(t.lost) })
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("perfkit: nats error: %v", err)
	}))

	nc, err := nats.Connect(t.cfg.Address, opts...)
	if err != nil {
		return fmt.Errorf("natstransport: connect: %w", err)
	}

	t.mu.Lock()
	t.conn = nc
	t.mu.Unlock()

	if t.cfg.DeliverySubject != "" {
		sub, err := nc.Subscribe(t.cfg.DeliverySubject, func(msg *nats.Msg) {
			t.deliveries <- frameFromMsg(msg)
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("natstransport: subscribe deliveries: %w", err)
		}
		t.mu.Lock()
		t.deliverer = sub
		t.mu.Unlock()
	}

	log.Infof("perfkit: nats transport connected to %s", t.cfg.Address)
	return nil
}

// Close unsubscribes everything and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deliverer != nil {
		t.deliverer.Unsubscribe()
		t.deliverer = nil
	}
	for token, sub := range t.replySubs {
		sub.Unsubscribe()
		delete(t.replySubs, token)
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

// subject derives a flat NATS subject from a frame's addressing fields.
func subject(f *transport.Frame) string {
	path := strings.Trim(strings.ReplaceAll(f.ObjectPath, "/", "."), ".")
	return fmt.Sprintf("%s.%s.%s.%s", f.Destination, f.Interface, f.Member, path)
}

// Send publishes f. For KindCall frames, a private reply inbox is
// subscribed first and embedded so the agent's reply (published to that
// inbox rather than back to Send's subject) lands on Replies().
func (t *Transport) Send(ctx context.Context, f *transport.Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("natstransport: not connected")
	}

	if f.Kind != transport.KindCall {
		return conn.Publish(subject(f), f.Body)
	}

	inbox := nats.NewInbox()
	sub, err := conn.Subscribe(inbox, func(msg *nats.Msg) {
		reply := frameFromMsg(msg)
		if reply.Kind != transport.KindError {
			reply.Kind = transport.KindReply
		}
		reply.Token = f.Token
		t.replies <- reply

		t.mu.Lock()
		if s, ok := t.replySubs[f.Token]; ok {
			s.Unsubscribe()
			delete(t.replySubs, f.Token)
		}
		t.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("natstransport: subscribe reply inbox: %w", err)
	}

	t.mu.Lock()
	t.replySubs[f.Token] = sub
	t.mu.Unlock()

	msg := &nats.Msg{Subject: subject(f), Reply: inbox, Data: f.Body}
	if err := conn.PublishMsg(msg); err != nil {
		t.mu.Lock()
		sub.Unsubscribe()
		delete(t.replySubs, f.Token)
		t.mu.Unlock()
		return fmt.Errorf("natstransport: publish: %w", err)
	}
	return nil
}

// Cancel unsubscribes the private reply inbox for token, if one is still
// outstanding, so a late reply from the agent has nowhere to land.
func (t *Transport) Cancel(token uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.replySubs[token]; ok {
		sub.Unsubscribe()
		delete(t.replySubs, token)
	}
	return nil
}

// Replies returns the channel of inbound reply/error frames.
func (t *Transport) Replies() <-chan *transport.Frame { return t.replies }

// Deliveries returns the channel of inbound subscription push frames.
func (t *Transport) Deliveries() <-chan *transport.Frame { return t.deliveries }

// Lost returns the channel closed once nats.go's DisconnectErrHandler
// fires, reporting the underlying connection went down.
func (t *Transport) Lost() <-chan struct{} { return t.lost }

// frameFromMsg decodes the transport-level envelope NATS wraps around a
// frame's body. It is used both for reply-inbox messages (where the
// absence of an error header means KindReply) and for delivery-subject
// messages (always KindSignal); callers that know which case they are in
// overwrite Kind/Token as needed.
func frameFromMsg(msg *nats.Msg) *transport.Frame {
	if errName := msg.Header.Get("Perfkit-Error"); errName != "" {
		return &transport.Frame{ObjectPath: msg.Subject, Kind: transport.KindError, Body: msg.Data, ErrorName: errName}
	}
	return &transport.Frame{ObjectPath: msg.Subject, Kind: transport.KindSignal, Body: msg.Data}
}
