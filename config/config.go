// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the client's static configuration, following the
// same json.Decoder.DisallowUnknownFields idiom as ClusterCockpit's
// pkg/nats/config.go and internal/config/config.go.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is everything needed to stand up a connection to an agent. It
// is deliberately small: there is exactly one transport (NATS) and one
// service root in scope.
type Config struct {
	// NatsURL is the address of the NATS server, e.g.
	// "nats://localhost:4222".
	NatsURL string `json:"natsUrl"`

	// Username/Password authenticate against the NATS server. Either may
	// be empty if the server allows anonymous connections.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// CredsFilePath, if set, is used instead of Username/Password.
	CredsFilePath string `json:"credsFilePath,omitempty"`

	// ServiceRoot overrides rpc.ServiceRoot when non-empty, applied once
	// at startup via rpc.SetServiceRoot. Left empty, the dispatcher uses
	// its built-in "org.perfkit" default.
	ServiceRoot string `json:"serviceRoot,omitempty"`

	// SocketTimeoutMillis bounds how long Connect waits for the transport to
	// come up, in milliseconds.
	SocketTimeoutMillis int64 `json:"socketTimeoutMillis,omitempty"`
}

// SocketTimeout returns SocketTimeoutMillis as a time.Duration, defaulting
// to 5s when unset.
func (c *Config) SocketTimeout() time.Duration {
	if c.SocketTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.SocketTimeoutMillis) * time.Millisecond
}

// Load reads and strictly decodes a Config from path, rejecting any
// field not declared above (the same dec.DisallowUnknownFields()
// discipline as pkg/nats/config.go's Init).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses raw JSON into a Config, same strictness as Load.
func Decode(raw []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.NatsURL == "" {
		return nil, fmt.Errorf("config: natsUrl is required")
	}
	return &cfg, nil
}
