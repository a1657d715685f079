// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpc implements the asynchronous RPC dispatcher: request
// encoding, correlation of replies to pending calls, cancellation, and
// typed result extraction.
package rpc

import (
	"fmt"
	"strconv"
	"strings"
)

// serviceRoot is the object-path/service-name prefix every path built or
// parsed by this package is rooted at. It defaults to "org.perfkit" and
// can be overridden once at startup via SetServiceRoot, before any
// connection is established.
var serviceRoot = "org.perfkit"

// SetServiceRoot overrides the default service root. A blank root is
// ignored. Call it before constructing a Dispatcher; changing the root
// after paths have already been built or calls issued produces
// inconsistent addressing.
func SetServiceRoot(root string) {
	if root != "" {
		serviceRoot = root
	}
}

// ServiceRoot returns the service root currently in effect.
func ServiceRoot() string {
	return serviceRoot
}

// Destination is the well-known service name every request is
// addressed to.
func Destination() string {
	return serviceRoot + ".Agent"
}

// BuildPath reconstructs an object path from a numeric or string handle,
// e.g. BuildPath("Channel", 7) -> "/org/perfkit/Agent/Channel/7".
func BuildPath(kind string, id any) string {
	return fmt.Sprintf("/%s/Agent/%s/%v", strings.ReplaceAll(serviceRoot, ".", "/"), kind, id)
}

// ManagerPath is the fixed, id-less path of the Manager singleton.
func ManagerPath() string {
	return fmt.Sprintf("/%s/Agent/Manager", strings.ReplaceAll(serviceRoot, ".", "/"))
}

// ParsePath matches an inbound or outbound path against the
// "<root>/<Kind>/<id>" convention and returns the kind and the trailing
// id as a raw string (Plugin identities are strings); use ParseIntID to
// turn a numeric id into an integer.
func ParsePath(path string) (kind string, id string, ok bool) {
	prefix := "/" + strings.ReplaceAll(serviceRoot, ".", "/") + "/Agent/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseIntID parses id as returned by ParsePath into an integer handle,
// for every kind except Plugin.
func ParseIntID(id string) (int, error) {
	return strconv.Atoi(id)
}
