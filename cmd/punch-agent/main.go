// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punch-agent/punch-agent/internal/config"
	"github.com/punch-agent/punch-agent/internal/httpapi"
	"github.com/punch-agent/punch-agent/internal/runtimeEnv"
	"github.com/punch-agent/punch-agent/internal/scheduler"
	"github.com/punch-agent/punch-agent/internal/store"
	"github.com/punch-agent/punch-agent/internal/zkdevice"
	"github.com/punch-agent/punch-agent/pkg/events"
	"github.com/punch-agent/punch-agent/pkg/log"
)

const defaultPollInterval = 5 * time.Minute

func main() {
	var flagConfigFile string
	var flagDumpUsers string
	var flagNoServer bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.StringVar(&flagDumpUsers, "dump-users", "", "Connect to the device at `host:port` and print its user list, then exit")
	flag.BoolVar(&flagNoServer, "no-server", false, "Do not start the scheduler or HTTP server, stop right after initialization")
	flag.Parse()

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(config.Keys.LogLevel)

	if flagDumpUsers != "" {
		dumpUsers(flagDumpUsers, config.Keys.ConnectTimeout, config.Keys.CommandTimeout)
		return
	}

	st, err := store.Open(config.Keys.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	bus := events.New()
	if config.Keys.NatsAddress != "" {
		if err := bus.Connect(events.Config{Address: config.Keys.NatsAddress}); err != nil {
			log.Fatal(err)
		}
	}
	defer bus.Close()

	interval := defaultPollInterval
	if minutes, ok, err := st.GetSettingInt("pollInterval"); err != nil {
		log.Fatal(err)
	} else if ok {
		interval = time.Duration(minutes) * time.Minute
	}

	sched, err := scheduler.New(st, bus, interval)
	if err != nil {
		log.Fatal(err)
	}
	sched.SetTimeouts(config.Keys.CommandTimeout, config.Keys.ConnectTimeout)

	if flagNoServer {
		return
	}

	if err := sched.Start(); err != nil {
		log.Fatal(err)
	}

	api := &httpapi.API{Store: st, Scheduler: sched}
	addr := config.Keys.Addr
	if port, ok, err := st.GetSettingInt("apiPort"); err != nil {
		log.Fatal(err)
	} else if ok {
		addr = fmt.Sprintf(":%d", port)
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.Wrap(api.NewRouter()),
	}

	go func() {
		log.Infof("punch-agent listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	runtimeEnv.SystemdNotifiy(true, "running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	runtimeEnv.SystemdNotifiy(false, "stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("http server shutdown: %s", err.Error())
	}
	if err := sched.Stop(); err != nil {
		log.Errorf("scheduler shutdown: %s", err.Error())
	}
}

// dumpUsers connects to a single device and prints its enrolled user list
// as JSON, a debug aid for verifying connectivity/credentials against a
// real device before registering it (C2's session handshake exercised
// standalone, the way a driver's smoke-test CLI would).
func dumpUsers(addr string, connectTimeout, commandTimeout time.Duration) {
	if connectTimeout == 0 {
		connectTimeout = scheduler.DefaultConnectTimeout
	}
	if commandTimeout == 0 {
		commandTimeout = scheduler.DefaultCommandTimeout
	}

	sess := zkdevice.New(addr, commandTimeout, connectTimeout)
	if err := sess.Connect(); err != nil {
		log.Fatal(err)
	}
	defer sess.Disconnect()

	users, err := sess.GetUsers()
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(users); err != nil {
		log.Fatal(err)
	}
}
