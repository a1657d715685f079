// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package perfkit holds the error taxonomy shared by every package in
// this module, so callers can errors.Is/errors.As against a single,
// stable set of sentinels regardless of which layer raised them.
package perfkit

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the client's packages.
var (
	// ErrInvalidState is returned when an operation is issued in an
	// inappropriate connection lifecycle state (e.g. Connect called twice).
	ErrInvalidState = errors.New("perfkit: invalid state")

	// ErrTransportUnavailable is returned when the transport could not be
	// established during connect.
	ErrTransportUnavailable = errors.New("perfkit: transport unavailable")

	// ErrDisconnected is returned to every pending call when the
	// transport is lost mid-operation.
	ErrDisconnected = errors.New("perfkit: disconnected")

	// ErrCancelled is returned when cooperative cancellation was observed
	// before a reply arrived. It is never raised spontaneously.
	ErrCancelled = errors.New("perfkit: cancelled")

	// ErrProtocol is returned when a reply or inbound frame failed to
	// decode according to its expected shape.
	ErrProtocol = errors.New("perfkit: protocol error")

	// ErrUnknownSource is returned when a sample arrives for a source id
	// with no resolved manifest.
	ErrUnknownSource = errors.New("perfkit: unknown source")

	// ErrTypeMismatch is returned when a sample field's wire kind does not
	// match the manifest's declared type for that row.
	ErrTypeMismatch = errors.New("perfkit: type mismatch")

	// ErrTimestampOverflow is returned when base_time + delta*resolution
	// would overflow 64-bit microseconds (see DESIGN.md open-question
	// decision: this implementation fails rather than clamps).
	ErrTimestampOverflow = errors.New("perfkit: timestamp overflow")
)

// RpcError is a structured error returned by the agent in reply to an
// RPC call: a reply frame whose message kind is Error turns into an
// RpcError carrying the agent-provided error name.
type RpcError struct {
	Name   string
	Detail string
}

func (e *RpcError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("perfkit: rpc error %s", e.Name)
	}
	return fmt.Sprintf("perfkit: rpc error %s: %s", e.Name, e.Detail)
}
