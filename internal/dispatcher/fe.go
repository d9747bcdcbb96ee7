// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SeisBlue/EEW-WebUI/internal/wsapi"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

const (
	// sendQueueCapacity bounds each client's outbound frame queue (spec.md
	// §4.6: "recommended 2000 frames"). A client that can't keep up gets
	// frames dropped, never the whole fanout path blocked.
	sendQueueCapacity = 2000

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client is one live WebSocket connection's write-side state: a buffered
// outbound queue plus the goroutine pumping it to the socket.
type Client struct {
	id   ConnID
	conn *websocket.Conn
	send chan []byte
}

// FanoutEngine owns every live Client and decides, for each processed tick
// and every pick/eew record, who gets a copy (spec.md §4.6).
type FanoutEngine struct {
	Registry *SubscriptionRegistry
	Metrics  *Metrics

	mu      sync.RWMutex
	clients map[ConnID]*Client
	nextID  uint64
}

// NewFanoutEngine creates an engine with no connections yet.
func NewFanoutEngine(registry *SubscriptionRegistry, metrics *Metrics) *FanoutEngine {
	return &FanoutEngine{
		Registry: registry,
		Metrics:  metrics,
		clients:  make(map[ConnID]*Client),
	}
}

// HistoricalRequester runs a historical query for one client; satisfied by
// *HistoricalQueryHandler. Declared here to keep fe.go free of a direct
// dependency on hq.go's scheduling internals.
type HistoricalRequester interface {
	Handle(ctx context.Context, connID ConnID, resolutionPx int, send func([]byte) bool, req wsapi.RequestHistoricalDataData) error
}

// Serve upgrades and owns one connection end to end: registers it, starts
// its write pump, and reads inbound events until the socket closes or ctx
// is canceled (spec.md §4.6 connection state machine).
func (fe *FanoutEngine) Serve(ctx context.Context, conn *websocket.Conn, hq HistoricalRequester) {
	id := ConnID(atomic.AddUint64(&fe.nextID, 1))
	c := &Client{id: id, conn: conn, send: make(chan []byte, sendQueueCapacity)}

	fe.mu.Lock()
	fe.clients[id] = c
	fe.mu.Unlock()

	defer func() {
		fe.mu.Lock()
		delete(fe.clients, id)
		fe.mu.Unlock()
		fe.Registry.OnDisconnect(id)
		if fe.Metrics != nil {
			fe.Metrics.ClientQueueLen.DeleteLabelValues(connLabel(id))
		}
		close(c.send)
		conn.Close()
	}()

	if raw, err := wsapi.ConnectInit(); err == nil {
		c.enqueue(raw, fe.Metrics)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go fe.writePump(pumpCtx, c)

	fe.readPump(ctx, c, hq)
}

func (fe *FanoutEngine) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (fe *FanoutEngine) readPump(ctx context.Context, c *Client, hq HistoricalRequester) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env wsapi.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			if ef, err := wsapi.ErrorFrame("malformed event envelope"); err == nil {
				c.enqueue(ef, fe.Metrics)
			}
			continue
		}

		if err := fe.handleInbound(ctx, c, env, hq); err != nil {
			if ef, ferr := wsapi.ErrorFrame(err.Error()); ferr == nil {
				c.enqueue(ef, fe.Metrics)
			}
		}
	}
}

func (fe *FanoutEngine) handleInbound(ctx context.Context, c *Client, env wsapi.Envelope, hq HistoricalRequester) error {
	switch env.Event {
	case wsapi.EventSubscribeStations:
		req, err := wsapi.ParseSubscribeStations(env.Data)
		if err != nil {
			return err
		}
		fe.Registry.Subscribe(c.id, req.Stations)
		return nil

	case wsapi.EventSetDisplayResolution:
		req, err := wsapi.ParseSetDisplayResolution(env.Data)
		if err != nil {
			return err
		}
		fe.Registry.SetResolution(c.id, req.Width)
		return nil

	case wsapi.EventRequestHistoricalData:
		req, err := wsapi.ParseRequestHistoricalData(env.Data)
		if err != nil {
			return err
		}
		if hq == nil {
			return nil
		}
		width := fe.Registry.Resolution(c.id)
		return hq.Handle(ctx, c.id, width, func(b []byte) bool { return c.enqueue(b, fe.Metrics) }, req)

	default:
		return nil
	}
}

// enqueue is a non-blocking send; a full queue means a slow client and the
// frame is dropped rather than stalling every other client (spec.md §4.6,
// §7). It returns whether the frame was accepted.
func (c *Client) enqueue(msg []byte, metrics *Metrics) bool {
	select {
	case c.send <- msg:
		if metrics != nil {
			metrics.ClientQueueLen.WithLabelValues(connLabel(c.id)).Set(float64(len(c.send)))
		}
		return true
	default:
		if metrics != nil {
			metrics.QueueOverflow.WithLabelValues("fe_client_send").Inc()
		}
		return false
	}
}

// BroadcastTick fans one SP tick out to every subscribed client, each at
// its own configured display resolution (spec.md §4.6).
func (fe *FanoutEngine) BroadcastTick(tick []ProcessedPacket, timestampMs int64) {
	if len(tick) == 0 {
		return
	}

	perClient := make(map[ConnID]map[string]wsapi.ChannelFrame)
	for _, pp := range tick {
		station := pp.WaveId.Station()
		for _, conn := range fe.Registry.Match(pp.WaveId, station) {
			width := fe.Registry.Resolution(conn)
			ds := dsp.Downsample(pp.Samples, pp.SampRate, width)
			frame := wsapi.ChannelFrame{
				Waveform:          ds.Samples,
				PGA:               pp.PGA,
				StartT:            pp.StartT,
				EndT:              pp.EndT,
				SampRate:          pp.SampRate,
				EffectiveSampRate: ds.EffectiveSampleRate,
				OriginalLength:    ds.OriginalLength,
				DownsampledLength: ds.DownsampledLength,
				DownsampleFactor:  ds.Stride,
			}
			data, ok := perClient[conn]
			if !ok {
				data = make(map[string]wsapi.ChannelFrame)
				perClient[conn] = data
			}
			data[string(pp.WaveId)] = frame
		}
	}

	waveId := fmt.Sprintf("batch_%d", timestampMs)
	for conn, data := range perClient {
		raw, err := wsapi.WavePacket(wsapi.PacketData{WaveId: waveId, Timestamp: timestampMs, Data: data})
		if err != nil {
			cclog.Warnf("fe: marshaling wave_packet: %v", err)
			continue
		}
		fe.sendTo(conn, raw)
	}
}

// BroadcastPick sends one pick record to every live connection, regardless
// of station subscription (spec.md §4.6: picks and EEW bypass the
// subscription filter).
func (fe *FanoutEngine) BroadcastPick(p Pick, timestampMs int64) {
	content, err := json.Marshal(p)
	if err != nil {
		cclog.Warnf("fe: marshaling pick: %v", err)
		return
	}
	raw, err := wsapi.PickPacket(content, timestampMs)
	if err != nil {
		cclog.Warnf("fe: marshaling pick_packet: %v", err)
		return
	}
	fe.broadcastAll(raw)
}

// BroadcastEEW sends one opaque eew record to every live connection.
func (fe *FanoutEngine) BroadcastEEW(payload string, timestampMs int64) {
	raw, err := wsapi.EEWPacket(payload, timestampMs)
	if err != nil {
		cclog.Warnf("fe: marshaling eew_packet: %v", err)
		return
	}
	fe.broadcastAll(raw)
}

func (fe *FanoutEngine) broadcastAll(raw []byte) {
	fe.mu.RLock()
	conns := make([]ConnID, 0, len(fe.clients))
	for id := range fe.clients {
		conns = append(conns, id)
	}
	fe.mu.RUnlock()
	for _, conn := range conns {
		fe.sendTo(conn, raw)
	}
}

func (fe *FanoutEngine) sendTo(conn ConnID, raw []byte) {
	fe.mu.RLock()
	c, ok := fe.clients[conn]
	fe.mu.RUnlock()
	if !ok {
		return
	}
	if c.enqueue(raw, fe.Metrics) && fe.Metrics != nil {
		fe.Metrics.FramesSent.Inc()
	}
}

func connLabel(id ConnID) string {
	return strconv.FormatUint(uint64(id), 10)
}
