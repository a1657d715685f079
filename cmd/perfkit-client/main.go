// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command perfkit-client connects to one agent over NATS, runs a
// periodic health check, and exits cleanly on SIGINT/SIGTERM. It is a
// thin demonstration wiring for package rpc/subscription/handle, with
// the same flag/config/gops/shutdown sequence as ClusterCockpit's
// cmd/cc-backend/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"

	"github.com/perfkit/perfkit-go/conn"
	"github.com/perfkit/perfkit-go/config"
	"github.com/perfkit/perfkit-go/handle"
	"github.com/perfkit/perfkit-go/internal/runtimeenv"
	"github.com/perfkit/perfkit-go/pkg/log"
	"github.com/perfkit/perfkit-go/rpc"
	"github.com/perfkit/perfkit-go/subscription"
	"github.com/perfkit/perfkit-go/transport/natstransport"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	var flagPingInterval time.Duration
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.DurationVar(&flagPingInterval, "ping-interval", 30*time.Second, "Interval between Manager.Ping health checks")
	flag.Parse()

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading %s failed: %s", flagConfigFile, err.Error())
	}
	rpc.SetServiceRoot(cfg.ServiceRoot)

	deliverySubject := rpc.Destination() + ".Subscription.>"
	transport := natstransport.New(natstransport.Config{
		Address:         cfg.NatsURL,
		Username:        cfg.Username,
		Password:        cfg.Password,
		CredsFilePath:   cfg.CredsFilePath,
		DeliverySubject: deliverySubject,
	})

	c := conn.New(transport)
	c.OnStateChange(func(s conn.State, reason conn.DisconnectReason) {
		log.Infof("perfkit: connection state -> %s", s)
	})

	ctx, stop := runtimeenv.WaitForSignal(context.Background())
	defer stop()

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.SocketTimeout())
	defer cancelConnect()
	if err := c.Connect(connectCtx); err != nil {
		log.Fatalf("connect failed: %s", err.Error())
	}
	runtimeenv.SystemdNotify(true, "connected")

	dispatcher := rpc.New(c)
	dispatcher.Start()
	defer dispatcher.Stop()

	registry := subscription.New(c)
	registry.Start()
	defer registry.Stop()

	manager := handle.NewManager(c, dispatcher)

	// Periodic health check, the same gocron.NewScheduler/NewJob pattern
	// ClusterCockpit's internal/taskManager uses for scheduled work.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("gocron: new scheduler: %s", err.Error())
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(flagPingInterval),
		gocron.NewTask(func() {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.SocketTimeout())
			defer cancel()
			if _, err := manager.Ping(pingCtx, "perfkit-client"); err != nil {
				log.Warnf("perfkit: health check ping failed: %v", err)
			}
		}),
	); err != nil {
		log.Fatalf("gocron: register ping job: %s", err.Error())
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	version, err := manager.GetVersion(ctx)
	if err != nil {
		log.Warnf("perfkit: GetVersion failed: %v", err)
	} else {
		fmt.Fprintf(os.Stdout, "connected to agent version %s\n", version)
	}

	<-ctx.Done()
	log.Info("perfkit: shutting down")
	dispatcher.Disconnect(context.Canceled)
	if err := c.Disconnect(); err != nil {
		log.Warnf("perfkit: disconnect: %v", err)
	}
}
