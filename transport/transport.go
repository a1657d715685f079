// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport describes the external collaborator this module
// deliberately does not implement directly: any reliable,
// message-oriented, bidirectional channel that carries request and
// reply frames. The dispatcher (package rpc) and the subscription inbox
// (package subscription) are written against the Transport interface
// here, not against any concrete bus; package transport/natstransport
// supplies one concrete, NATS-backed implementation.
package transport

import "context"

// FrameKind is the message kind carried by a Frame: Call, Reply, Error,
// or Signal.
type FrameKind uint8

const (
	KindCall FrameKind = iota
	KindReply
	KindError
	KindSignal
)

func (k FrameKind) String() string {
	switch k {
	case KindCall:
		return "Call"
	case KindReply:
		return "Reply"
	case KindError:
		return "Error"
	case KindSignal:
		return "Signal"
	default:
		return "Unknown"
	}
}

// Frame is one request, reply, or pushed delivery exchanged with the
// agent. Destination/Interface/Member/ObjectPath mirror the addressing
// fields any transport needs; Token is the dispatcher's correlation
// token; Body is the wire-encoded (package wire) argument or result
// payload.
type Frame struct {
	Destination string
	Interface   string
	Member      string
	ObjectPath  string
	Kind        FrameKind
	Token       uint64
	Body        []byte

	// ErrorName carries the agent-provided error identifier when Kind is
	// KindError, turned into an RpcError with this name by package rpc.
	ErrorName string
}

// Transport is the bidirectional channel the dispatcher and subscription
// inbox depend on. Implementations must guarantee at-most-one reply per
// outstanding Token.
type Transport interface {
	// Connect establishes the underlying channel. It is called exactly
	// once by the connection lifecycle state machine (package conn).
	Connect(ctx context.Context) error

	// Close tears the channel down; outstanding calls are the caller's
	// responsibility to fail out (package rpc does this via
	// Dispatcher.Disconnect).
	Close() error

	// Send transmits f. For KindCall frames this is fire-and-forget from
	// the transport's point of view; the reply (if any) arrives later on
	// Replies().
	Send(ctx context.Context, f *Frame) error

	// Cancel asks the transport to drop any outstanding request
	// correlated with token, best-effort. A reply that still arrives
	// after Cancel is the dispatcher's responsibility to discard.
	Cancel(token uint64) error

	// Replies yields inbound Reply/Error frames, keyed by the Token the
	// dispatcher assigned when it sent the matching Call frame.
	Replies() <-chan *Frame

	// Deliveries yields inbound Signal frames pushed by the agent to a
	// subscription, manifests and samples routed by object path.
	Deliveries() <-chan *Frame

	// Lost is closed the first time the transport detects it has gone
	// down outside of a caller-initiated Close, e.g. the underlying
	// connection dropping. Package conn watches it to drive the
	// Connected -> Disconnected transition with ReasonLost.
	Lost() <-chan struct{}
}
