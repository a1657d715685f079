// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/conn"
	"github.com/perfkit/perfkit-go/pkg/log"
	"github.com/perfkit/perfkit-go/transport"
	"github.com/perfkit/perfkit-go/wire"
)

// Request is everything needed to address and encode one outbound call.
// Encode writes the positional argument list using package wire, per
// each argument's declared wire tag.
type Request struct {
	ObjectPath string
	Interface  string
	Member     string
	Encode     func(w *wire.Writer)
}

// completion is delivered exactly once per pendingCall, by whichever of
// HandleReply, Cancel, or Disconnect observes it first.
type completion struct {
	frame *transport.Frame
	err   error
}

// pendingCall is the bookkeeping record for one outstanding async call:
// its correlation token, the method it was issued for, and its
// completion channel.
type pendingCall struct {
	token  uint64
	method string
	result chan completion
}

// Dispatcher correlates outbound calls with inbound replies by a
// monotonic per-connection token, and completes every pending call
// exactly once. It holds the pending-call table under the connection's
// single-writer/many-reader lock, rather than a lock of its own, so
// lifecycle transitions and dispatcher bookkeeping can never be observed
// out of order with each other.
type Dispatcher struct {
	conn      *conn.Connection
	pending   map[uint64]*pendingCall
	nextToken atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// New returns a Dispatcher bound to c. Start must be called once c is
// connected to begin pumping replies. c's lifecycle transitions are
// watched for the rest of the Dispatcher's life: a transport loss fails
// every pending call out with ErrDisconnected the same way an explicit
// Disconnect would.
func New(c *conn.Connection) *Dispatcher {
	d := &Dispatcher{
		conn:    c,
		pending: make(map[uint64]*pendingCall),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.OnStateChange(func(s conn.State, reason conn.DisconnectReason) {
		if s == conn.StateDisconnected && reason == conn.ReasonLost {
			// Run outside the observer callback: it fires with the
			// connection's write lock held, and Disconnect needs that
			// same lock to drain the pending-call table.
			go d.Disconnect(perfkit.ErrDisconnected)
		}
	})
	return d
}

// Start launches the goroutine that reads Transport.Replies() and feeds
// each frame to HandleReply, until Stop is called or the channel closes.
func (d *Dispatcher) Start() {
	go d.pump()
}

// Stop halts the reply pump. It does not itself fail pending calls; call
// Disconnect for that.
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) pump() {
	defer close(d.done)
	var replies <-chan *transport.Frame
	d.conn.WithReadLock(func() { replies = d.conn.Transport().Replies() })
	for {
		select {
		case <-d.stop:
			return
		case f, ok := <-replies:
			if !ok {
				return
			}
			d.HandleReply(f)
		}
	}
}

// CallAsync registers a pending call, encodes and sends req, and returns
// immediately without waiting for a reply. The token is released before
// returning to the caller on any encode or send error, so a failed
// CallAsync never leaks a pending-table entry.
func CallAsync[T any](d *Dispatcher, req Request, decode Decode[T]) (*Async[T], error) {
	token := d.nextToken.Add(1)
	call := &pendingCall{token: token, method: req.Member, result: make(chan completion, 1)}

	w := wire.NewWriter()
	if req.Encode != nil {
		req.Encode(w)
	}
	frame := &transport.Frame{
		Destination: Destination(),
		Interface:   req.Interface,
		Member:      req.Member,
		ObjectPath:  req.ObjectPath,
		Kind:        transport.KindCall,
		Token:       token,
		Body:        w.Bytes(),
	}

	var sendErr error
	var tport transport.Transport
	d.conn.WithWriteLock(func() {
		d.pending[token] = call
		tport = d.conn.Transport()
	})

	sendErr = tport.Send(context.Background(), frame)
	if sendErr != nil {
		d.conn.WithWriteLock(func() { delete(d.pending, token) })
		return nil, fmt.Errorf("rpc: send %s: %w", req.Member, sendErr)
	}

	return &Async[T]{d: d, token: token, method: req.Member, decode: decode, call: call}, nil
}

// Call is the blocking convenience wrapper: CallAsync followed
// immediately by Finish.
func Call[T any](ctx context.Context, d *Dispatcher, req Request, decode Decode[T]) (T, error) {
	async, err := CallAsync(d, req, decode)
	if err != nil {
		var zero T
		return zero, err
	}
	return async.Finish(ctx)
}

// HandleReply completes the pending call matching f.Token, if any is
// still outstanding. A token with no matching entry, because it was
// already completed by Cancel or Disconnect, is a silent no-op.
func (d *Dispatcher) HandleReply(f *transport.Frame) {
	var call *pendingCall
	d.conn.WithWriteLock(func() {
		call = d.pending[f.Token]
		delete(d.pending, f.Token)
	})
	if call == nil {
		log.Debugf("perfkit: dropping reply for unknown or completed token %d", f.Token)
		return
	}
	call.result <- completion{frame: f}
}

// Disconnect completes every still-pending call with reason (or with
// ErrDisconnected when reason is nil), in the order their tokens were
// allocated. Tokens are assigned by a
// monotonic counter, so sorting numerically reproduces allocation order
// without a separate index.
func (d *Dispatcher) Disconnect(reason error) {
	if reason == nil {
		reason = perfkit.ErrDisconnected
	}
	var calls []*pendingCall
	d.conn.WithWriteLock(func() {
		calls = make([]*pendingCall, 0, len(d.pending))
		for _, c := range d.pending {
			calls = append(calls, c)
		}
		d.pending = make(map[uint64]*pendingCall)
	})
	sort.Slice(calls, func(i, j int) bool { return calls[i].token < calls[j].token })
	for _, c := range calls {
		c.result <- completion{err: reason}
	}
}

// Async is a handle to one in-flight call, returned by CallAsync. It
// completes exactly once, whether via Finish observing a reply or via
// Cancel.
type Async[T any] struct {
	d      *Dispatcher
	token  uint64
	method string
	decode Decode[T]
	call   *pendingCall

	finished atomic.Bool
}

// Method returns the RPC member name this handle was created for, so
// callers can validate a handle's identity before finishing it.
func (a *Async[T]) Method() string { return a.method }

// Finish blocks until the call completes or ctx is done, then decodes
// the reply using Decode/DecodeMessage. Reply frames whose kind is Error
// become *perfkit.RpcError; decode failures become perfkit.ErrProtocol.
// Calling Finish a second time on an already-finished handle is a
// programming error reported as perfkit.ErrInvalidState.
func (a *Async[T]) Finish(ctx context.Context) (T, error) {
	var zero T
	if !a.finished.CompareAndSwap(false, true) {
		return zero, fmt.Errorf("rpc: %s: async handle already finished: %w", a.method, perfkit.ErrInvalidState)
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case c := <-a.call.result:
		if c.err != nil {
			return zero, c.err
		}
		return a.decodeFrame(c.frame)
	}
}

func (a *Async[T]) decodeFrame(f *transport.Frame) (T, error) {
	var zero T
	if f.Kind == transport.KindError {
		return zero, &perfkit.RpcError{Name: f.ErrorName, Detail: string(f.Body)}
	}
	r := wire.NewReader(f.Body)
	v, err := a.decode(r)
	if err != nil {
		return zero, fmt.Errorf("rpc: %s: decode reply: %w: %w", a.method, perfkit.ErrProtocol, err)
	}
	return v, nil
}

// Cancel asks the transport to drop the outstanding request and
// completes the handle's pending Finish with perfkit.ErrCancelled. It is
// one-shot: a second Cancel, or a Cancel racing a reply that has already
// been delivered, is a silent no-op. A reply that arrives for this token
// after Cancel wins the race is looked up by HandleReply, found already
// removed from the pending table, and dropped.
func (a *Async[T]) Cancel() error {
	var owned bool
	d := a.d
	d.conn.WithWriteLock(func() {
		if _, ok := d.pending[a.token]; ok {
			delete(d.pending, a.token)
			owned = true
		}
	})
	if !owned {
		return nil
	}
	var tport transport.Transport
	d.conn.WithReadLock(func() { tport = d.conn.Transport() })
	err := tport.Cancel(a.token)
	a.call.result <- completion{err: perfkit.ErrCancelled}
	return err
}
