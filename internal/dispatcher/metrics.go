// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the dispatcher's stages share.
// BR, SP, FE and HQ all take a *Metrics rather than registering their own
// collectors, so cmd/dispatcher controls registration exactly once.
type Metrics struct {
	RecordsDropped prometheus.Counter
	QueueOverflow  *prometheus.CounterVec
	ClientQueueLen *prometheus.GaugeVec
	FramesSent     prometheus.Counter
	PicksDeduped   prometheus.Counter
}

// NewMetrics constructs every collector. Call MustRegister on the returned
// Metrics' collectors (via Collectors) before serving /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_bus_records_dropped_total",
			Help: "Bus records dropped for malformed metadata or decode failure.",
		}),
		QueueOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_queue_overflow_total",
			Help: "Messages dropped because a downstream queue was full.",
		}, []string{"stage"}),
		ClientQueueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatcher_client_queue_depth",
			Help: "Current send-queue depth for a client connection.",
		}, []string{"conn"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_frames_sent_total",
			Help: "Frames written to client connections.",
		}),
		PicksDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_picks_deduped_total",
			Help: "Pick keys broadcast to live clients (one per key, at its first update_sec==2 observation).",
		}),
	}
}

// Collectors returns every collector for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsDropped,
		m.QueueOverflow,
		m.ClientQueueLen,
		m.FramesSent,
		m.PicksDeduped,
	}
}
