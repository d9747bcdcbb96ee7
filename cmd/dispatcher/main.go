// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
	"github.com/SeisBlue/EEW-WebUI/internal/calib"
	"github.com/SeisBlue/EEW-WebUI/internal/config"
	"github.com/SeisBlue/EEW-WebUI/internal/dispatcher"
	"github.com/SeisBlue/EEW-WebUI/internal/dispatcherconfig"
	"github.com/SeisBlue/EEW-WebUI/internal/httpapi"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// shutdownGrace bounds how long main waits for in-flight work (the
// dispatcher's tasks, the HTTP server's open connections) to drain once a
// shutdown signal arrives (spec.md §5).
const shutdownGrace = 10 * time.Second

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	config.Init(flagConfigFile)
	dispatcherconfig.Init(config.Keys.Dispatcher)

	// See https://github.com/google/gops (Runtime overhead is almost zero)
	if flagGops || config.Keys.EnableGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisBus, err := bus.NewRedisBus(ctx, bus.Config{
		Host:     config.Keys.RedisHost,
		Port:     config.Keys.RedisPort,
		DB:       config.Keys.RedisDB,
		Password: config.Keys.RedisPassword,
	})
	if err != nil {
		cclog.Fatal(err)
	}
	defer redisBus.Close()

	calibTable, err := calib.Load(dispatcherconfig.Values.CalibrationFile)
	if err != nil {
		cclog.Fatal(err)
	}

	pipe, err := dsp.NewPipeline()
	if err != nil {
		cclog.Fatal(err)
	}

	d, err := dispatcher.New(redisBus, pipe, calibTable, dispatcher.Config{
		PickRetentionSeconds:    dispatcherconfig.Values.PickRetentionSeconds,
		LiveWindowSeconds:       dispatcherconfig.Values.LiveWindowSeconds,
		HistoricalWindowSeconds: dispatcherconfig.Values.HistoricalWindowSeconds,
		DefaultResolutionPx:     dispatcherconfig.Values.DefaultResolutionPx,
	})
	if err != nil {
		cclog.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	for _, c := range d.Metrics.Collectors() {
		registry.MustRegister(c)
	}

	router := httpapi.New(d, registry)
	server := &http.Server{
		Addr:         config.Keys.Addr,
		Handler:      httpapi.LoggingHandler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Run(ctx, &wg)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cclog.Infof("dispatcher: HTTP server listening at %s", config.Keys.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Fatal(err)
		}
	}()

	<-ctx.Done()
	cclog.Print("dispatcher: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		cclog.Warnf("dispatcher: HTTP server shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		cclog.Warn("dispatcher: shutdown grace period exceeded, exiting anyway")
	}

	cclog.Print("dispatcher: graceful shutdown completed")
}
