// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn

import (
	"context"
	"fmt"
	"sync"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/pkg/log"
	"github.com/perfkit/perfkit-go/resolver"
	"github.com/perfkit/perfkit-go/transport"
)

// Observer is notified synchronously, from the connection's progress
// context, whenever the lifecycle state changes.
type Observer func(s State, reason DisconnectReason)

// Connection is the client-side half of one session with an agent. It
// owns the resolver, and is referenced by package rpc's Dispatcher and
// package subscription's Registry as the single point of truth for
// lifecycle state.
//
// The transport handle is guarded by a single-writer/many-reader lock:
// WithWriteLock is used for lifecycle transitions; WithReadLock is used
// by the RPC dispatcher's send path and by subscription delivery.
type Connection struct {
	mu sync.RWMutex

	state     State
	transport transport.Transport
	resolver  *resolver.Resolver

	observersMu sync.Mutex
	observers   []Observer
}

// New returns a Connection in StateInitial, wrapping t. t is not dialed
// until Connect is called.
func New(t transport.Transport) *Connection {
	return &Connection{
		state:     StateInitial,
		transport: t,
		resolver:  resolver.New(),
	}
}

// Resolver returns the connection's manifest resolver.
func (c *Connection) Resolver() *resolver.Resolver { return c.resolver }

// Transport returns the underlying transport for packages (rpc,
// subscription) that need to call it directly under a held lock.
func (c *Connection) Transport() transport.Transport { return c.transport }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnStateChange registers an observer. Observers already registered see
// every subsequent transition in monotone order.
func (c *Connection) OnStateChange(obs Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, obs)
}

func (c *Connection) fire(s State, reason DisconnectReason) {
	c.observersMu.Lock()
	obs := append([]Observer(nil), c.observers...)
	c.observersMu.Unlock()
	for _, o := range obs {
		o(s, reason)
	}
}

// setState moves the connection to s, enforcing that transitions never
// move backward, then fires observers. Caller must hold the write lock.
func (c *Connection) setState(s State, reason DisconnectReason) {
	if s.rank() < c.state.rank() {
		panic(fmt.Sprintf("conn: illegal backward transition %s -> %s", c.state, s))
	}
	c.state = s
	c.fire(s, reason)
}

// Connect drives Initial -> Connecting -> Connected (or Disconnected/Failed
// on transport error). A second Connect on an already-connected or
// disconnected connection fails with ErrInvalidState and does not emit a
// state-change event.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitial {
		c.mu.Unlock()
		return fmt.Errorf("conn: connect from %s: %w", c.state, perfkit.ErrInvalidState)
	}
	c.setState(StateConnecting, ReasonNone)
	c.mu.Unlock()

	err := c.transport.Connect(ctx)

	c.mu.Lock()
	if err != nil {
		c.setState(StateDisconnected, ReasonFailed)
		c.mu.Unlock()
		return fmt.Errorf("conn: connect: %w: %w", perfkit.ErrTransportUnavailable, err)
	}
	c.setState(StateConnected, ReasonNone)
	c.mu.Unlock()
	log.Info("perfkit: connection established")

	go c.watchTransportLoss()
	return nil
}

// watchTransportLoss drives the Connected -> Disconnected transition when
// the transport reports it went down on its own, rather than through a
// caller-initiated Disconnect.
func (c *Connection) watchTransportLoss() {
	<-c.transport.Lost()
	c.FailFromTransportLoss()
}

// Disconnect tears the connection down from Connected. It is idempotent: calling
// Disconnect on an already-disconnected connection is a no-op, since
// transport loss may have already driven the same transition.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil
	}
	if c.state != StateConnected {
		return fmt.Errorf("conn: disconnect from %s: %w", c.state, perfkit.ErrInvalidState)
	}
	err := c.transport.Close()
	c.setState(StateDisconnected, ReasonNone)
	return err
}

// FailFromTransportLoss drives Connected -> Disconnected in response to
// the transport reporting loss out of band, rather than a user-initiated
// disconnect.
func (c *Connection) FailFromTransportLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	c.setState(StateDisconnected, ReasonLost)
}

// WithReadLock runs fn while holding the shared read lock, for readers
// (RPC argument send-paths, response dispatch, subscription delivery)
// that dereference the transport handle without mutating lifecycle
// state.
func (c *Connection) WithReadLock(fn func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn()
}

// WithWriteLock runs fn while holding the exclusive write lock, for
// writers that mutate lifecycle state, the pending-call table, or the
// resolver.
func (c *Connection) WithWriteLock(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}
