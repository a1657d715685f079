// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"fmt"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/wire"
)

// Decode turns a reply's decoded wire body into a typed result. Each RPC
// wrapper (package handle) supplies its own Decode, built from a table
// of field number to handler applied by DecodeMessage, replacing
// field-by-field switch decoding with a declarative table the dispatcher
// walks generically. The table carries no wire kind and no field order:
// DecodeMessage accepts the handled fields in any order and passes each
// handler the tag as read, without checking its kind.
type Decode[T any] func(r *wire.Reader) (T, error)

// FieldHandler decodes one field already positioned at tag into its
// target, given the dispatcher already read and validated tag.
type FieldHandler func(r *wire.Reader, tag wire.Tag) error

// DecodeMessage walks every tag in r, dispatching each field number to
// its handler. Unlike manifest and sample decoding, which tolerate and
// skip fields they don't recognize to stay forward-compatible with
// richer future records, a reply is expected to carry exactly the
// result fields its RPC declares: a field number with no handler means
// the client and agent disagree about the call's result shape, so it is
// reported as perfkit.ErrProtocol rather than silently skipped.
func DecodeMessage(r *wire.Reader, handlers map[uint32]FieldHandler) error {
	for r.Len() > 0 {
		tag, err := r.ReadTag()
		if err != nil {
			return err
		}
		h, ok := handlers[tag.Field]
		if !ok {
			return fmt.Errorf("rpc: unexpected field %d in reply: %w", tag.Field, perfkit.ErrProtocol)
		}
		if err := h(r, tag); err != nil {
			return err
		}
	}
	return nil
}
