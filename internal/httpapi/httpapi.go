// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes the dispatcher over HTTP: the WebSocket upgrade
// entry point, a liveness probe, Prometheus exposition, and a debug dump
// of known stations (spec.md §6, supplemented by the per-station
// staleness tracking described in spec.md §9). Routing uses gorilla/mux,
// wrapped in gorilla/handlers compression/recovery/logging middleware.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SeisBlue/EEW-WebUI/internal/dispatcher"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// staleAfter is how long since a station's last decoded wave record before
// /healthz and /debug/stations report it as stale (spec.md §9: "detect
// dead feeds").
const staleAfter = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Subscribers are expected to be the project's own frontend served
	// from a different origin during development; spec.md's Non-goals
	// explicitly exclude auth/authz of subscribers, so origin checks are
	// not a security boundary here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New builds the router. registry is used only for the /metrics handler;
// callers register d.Metrics.Collectors() on it before passing it in.
func New(d *dispatcher.Dispatcher, registry *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", wsHandler(d)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler(d)).Methods(http.MethodGet)
	r.HandleFunc("/debug/stations", debugStationsHandler(d)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	return r
}

// LoggingHandler wraps r with request logging: the WebSocket upgrade route
// logs at Info, everything else at Debug.
func LoggingHandler(r http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		line := func(format string, v ...interface{}) {
			if strings.HasPrefix(params.Request.RequestURI, "/ws") {
				cclog.Infof(format, v...)
			} else {
				cclog.Debugf(format, v...)
			}
		}
		line("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})
}

func wsHandler(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cclog.Warnf("httpapi: websocket upgrade failed: %v", err)
			return
		}
		d.FE.Serve(r.Context(), conn, d.HQ)
	}
}

type stationHealth struct {
	Key      string  `json:"key"`
	LastSeen string  `json:"last_seen"`
	AgeSec   float64 `json:"age_seconds"`
	Stale    bool    `json:"stale"`
}

type healthzResponse struct {
	Status         string          `json:"status"`
	LastPollAgeSec float64         `json:"last_poll_age_seconds"`
	StationCount   int             `json:"station_count"`
	StaleStations  []stationHealth `json:"stale_stations,omitempty"`
}

// healthzHandler reports bus connectivity (via BR's last successful poll
// age) and per-station staleness (spec.md §9 supplemented feature).
func healthzHandler(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stations, lastPoll := d.BR.Status()
		now := time.Now()

		resp := healthzResponse{Status: "ok", StationCount: len(stations)}
		if !lastPoll.IsZero() {
			resp.LastPollAgeSec = now.Sub(lastPoll).Seconds()
		}
		if resp.LastPollAgeSec > staleAfter.Seconds() {
			resp.Status = "degraded"
		}

		for _, s := range stations {
			age := now.Sub(s.LastSeen)
			if age > staleAfter {
				resp.Status = "degraded"
				resp.StaleStations = append(resp.StaleStations, stationHealth{
					Key: s.Key, LastSeen: s.LastSeen.UTC().Format(time.RFC3339), AgeSec: age.Seconds(), Stale: true,
				})
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

type debugStationEntry struct {
	Key        string  `json:"key"`
	LastSeen   string  `json:"last_seen,omitempty"`
	AgeSeconds float64 `json:"age_seconds,omitempty"`
}

type debugStationsResponse struct {
	Stations       []string            `json:"window_store_stations"`
	StreamsTracked []debugStationEntry `json:"streams_tracked"`
}

// debugStationsHandler dumps WS's known stations alongside BR's per-key
// last-seen bookkeeping.
func debugStationsHandler(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stations, _ := d.BR.Status()
		now := time.Now()

		entries := make([]debugStationEntry, 0, len(stations))
		for _, s := range stations {
			entries = append(entries, debugStationEntry{
				Key:        s.Key,
				LastSeen:   s.LastSeen.UTC().Format(time.RFC3339),
				AgeSeconds: now.Sub(s.LastSeen).Seconds(),
			})
		}

		writeJSON(w, http.StatusOK, debugStationsResponse{
			Stations:       d.Windows.Stations(),
			StreamsTracked: entries,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		cclog.Warnf("httpapi: encoding response: %v", err)
	}
}
