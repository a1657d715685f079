// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package subscription delivers inbound manifest and sample pushes to
// the registered callbacks for a subscription. It sits downstream of
// the connection's Deliveries() channel: the dispatcher handles
// request/reply traffic, this package handles everything the agent
// pushes unsolicited.
package subscription

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/perfkit/perfkit-go/conn"
	"github.com/perfkit/perfkit-go/manifest"
	"github.com/perfkit/perfkit-go/pkg/log"
	"github.com/perfkit/perfkit-go/rpc"
	"github.com/perfkit/perfkit-go/sample"
	"github.com/perfkit/perfkit-go/transport"
	"github.com/perfkit/perfkit-go/wire"
)

// memberManifest and memberSample are the two Signal members the agent
// pushes against a subscription's object path; Dispatch branches on
// which one a frame carries.
const (
	memberManifest = "Manifest"
	memberSample   = "Sample"
)

// Sub is one client-side registration: the callbacks invoked as pushes
// for this subscription id arrive.
type Sub struct {
	ID uint64

	// DebugID correlates this Sub's log lines across a session; it has
	// no protocol meaning. Left empty, Add fills it in.
	DebugID string

	// OnManifest is invoked for every manifest push, after the manifest
	// has already been installed in the resolver, so the callback sees
	// the value that later samples for this source will decode against.
	OnManifest func(m *manifest.Manifest)

	// OnSample is invoked for every successfully decoded sample push.
	OnSample func(s *sample.Sample)

	// OnError is invoked when a push for this subscription fails to
	// decode. Decode failures never tear the connection down; only
	// OnError observes them.
	OnError func(err error)
}

// Registry tracks active subscriptions by id and dispatches inbound
// Signal frames to the matching Sub. It shares the connection's resolver
// (package resolver, via package conn) so a pushed Manifest becomes
// visible to Sample decoding immediately.
type Registry struct {
	conn *conn.Connection

	mu   sync.RWMutex
	subs map[uint64]*Sub

	stop chan struct{}
	done chan struct{}
}

// New returns an empty Registry bound to c.
func New(c *conn.Connection) *Registry {
	return &Registry{
		conn: c,
		subs: make(map[uint64]*Sub),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Add registers sub for delivery. Replacing an existing registration for
// the same id is allowed and simply overwrites the callbacks. A blank
// DebugID is assigned fresh, so every log line about this subscription
// can be correlated without the numeric subscription id colliding across
// reconnects that reuse it.
func (reg *Registry) Add(sub *Sub) {
	if sub.DebugID == "" {
		sub.DebugID = uuid.NewString()
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.subs[sub.ID] = sub
}

// Remove unregisters a subscription id; pushes that arrive afterward are
// dropped with a debug log line, matching the agent-side unsubscribe
// being best-effort and possibly racing in-flight pushes.
func (reg *Registry) Remove(id uint64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.subs, id)
}

// Start launches the goroutine that reads Transport.Deliveries() and
// feeds each frame to Dispatch, until Stop is called or the channel
// closes.
func (reg *Registry) Start() {
	go reg.pump()
}

// Stop halts the delivery pump.
func (reg *Registry) Stop() {
	close(reg.stop)
	<-reg.done
}

func (reg *Registry) pump() {
	defer close(reg.done)
	var deliveries <-chan *transport.Frame
	reg.conn.WithReadLock(func() { deliveries = reg.conn.Transport().Deliveries() })
	for {
		select {
		case <-reg.stop:
			return
		case f, ok := <-deliveries:
			if !ok {
				return
			}
			reg.Dispatch(f)
		}
	}
}

// Dispatch routes one pushed Signal frame by its object path
// ("<root>/Subscription/<id>") and member (Manifest or Sample). Any
// failure, an unparseable path, an unknown subscription id, or a decode
// error, is reported to the matching Sub's OnError (if any) and
// otherwise only logged; it never propagates to the caller, since a pump
// goroutine has nowhere to return an error to.
func (reg *Registry) Dispatch(f *transport.Frame) {
	kind, idStr, ok := rpc.ParsePath(f.ObjectPath)
	if !ok || kind != "Subscription" {
		log.Warnf("perfkit: delivery on unrecognized path %q", f.ObjectPath)
		return
	}
	id, err := rpc.ParseIntID(idStr)
	if err != nil {
		log.Warnf("perfkit: delivery with non-numeric subscription id %q", idStr)
		return
	}

	reg.mu.RLock()
	sub, ok := reg.subs[uint64(id)]
	reg.mu.RUnlock()
	if !ok {
		log.Debugf("perfkit: delivery for unknown subscription %d", id)
		return
	}

	switch f.Member {
	case memberManifest:
		reg.dispatchManifest(sub, f)
	case memberSample:
		reg.dispatchSample(sub, f)
	default:
		reg.reportError(sub, fmt.Errorf("subscription: unrecognized push member %q", f.Member))
	}
}

func (reg *Registry) dispatchManifest(sub *Sub, f *transport.Frame) {
	m, err := manifest.Decode(wire.NewReader(f.Body))
	if err != nil {
		reg.reportError(sub, fmt.Errorf("subscription %d: decode manifest: %w", sub.ID, err))
		return
	}
	reg.conn.WithWriteLock(func() { reg.conn.Resolver().Insert(m) })
	if sub.OnManifest != nil {
		sub.OnManifest(m)
	}
}

func (reg *Registry) dispatchSample(sub *Sub, f *transport.Frame) {
	s, err := sample.Decode(wire.NewReader(f.Body), reg.conn.Resolver())
	if err != nil {
		reg.reportError(sub, fmt.Errorf("subscription %d: decode sample: %w", sub.ID, err))
		return
	}
	if sub.OnSample != nil {
		sub.OnSample(s)
	}
}

func (reg *Registry) reportError(sub *Sub, err error) {
	log.Warnf("perfkit: [%s] %v", sub.DebugID, err)
	if sub.OnError != nil {
		sub.OnError(err)
	}
}
