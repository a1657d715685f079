// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeenv holds the process/runtime glue cmd/perfkit-client
// needs: the systemd readiness notification used on successful connect,
// and a signal-driven shutdown context.
package runtimeenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// SystemdNotify informs systemd that the process is ready (or reports a
// status string), mirroring pkg/runtimeEnv/setup.go's SystemdNotifiy. It
// is a no-op when the process was not started under systemd.
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	_ = cmd.Run() // best-effort, nothing useful to do with a failure here
}

// WaitForSignal returns a context that is cancelled the first time the
// process receives SIGINT or SIGTERM, for graceful shutdown in
// cmd/perfkit-client. The caller is responsible for calling the returned
// stop function once the context is no longer needed.
func WaitForSignal(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
