// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package api

import (
	"context"
	"time"

	"github.com/buaazp/fasthttprouter"
	"github.com/fasthttp/websocket"
	"github.com/perlin-network/avail"
	"github.com/perlin-network/avail/debouncer"
	"github.com/perlin-network/avail/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true
	},
}

type Options struct {
	ListenAddr string
}

// Run hosts the operator API for a running protocol: status and candidate
// snapshots over HTTP, plus a websocket feed of accepted chunks.
func Run(p *avail.Protocol, metrics *avail.Metrics, opts Options) error {
	gateway := &gateway{
		protocol: p,
		metrics:  metrics,
		sink: &sink{
			join:    make(chan *client),
			leave:   make(chan *client),
			clients: make(map[*client]struct{}),
		},
	}

	go gateway.sink.run(p)

	router := fasthttprouter.New()
	router.GET("/status", gateway.status)
	router.GET("/candidates", gateway.candidates)
	router.GET("/metrics", gateway.stats)
	router.GET("/feed", gateway.feed)

	log.API().Info().Str("address", opts.ListenAddr).Msg("API started.")

	return fasthttp.ListenAndServe(opts.ListenAddr, router.Handler)
}

type gateway struct {
	protocol *avail.Protocol
	metrics  *avail.Metrics
	sink     *sink
}

func (g *gateway) status(ctx *fasthttp.RequestCtx) {
	status, err := avail.QueryStatus(g.protocol)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusServiceUnavailable)
		return
	}

	var arena fastjson.Arena

	obj := arena.NewObject()
	obj.Set("relay_parents", arena.NewNumberInt(status.RelayParents))
	obj.Set("candidates", arena.NewNumberInt(len(status.Candidates)))
	obj.Set("peers", arena.NewNumberInt(status.Peers))

	view := arena.NewArray()
	for i, h := range status.View {
		view.SetArrayItem(i, arena.NewString(h.String()))
	}
	obj.Set("view", view)

	writeJSON(ctx, obj)
}

func (g *gateway) candidates(ctx *fasthttp.RequestCtx) {
	status, err := avail.QueryStatus(g.protocol)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusServiceUnavailable)
		return
	}

	var arena fastjson.Arena

	list := arena.NewArray()

	for i, candidate := range status.Candidates {
		obj := arena.NewObject()
		obj.Set("hash", arena.NewString(candidate.Hash.String()))
		obj.Set("para_id", arena.NewNumberInt(int(candidate.Para)))
		obj.Set("live_in", arena.NewNumberInt(candidate.LiveIn))
		obj.Set("chunks_held", arena.NewNumberInt(candidate.ChunksHeld))
		obj.Set("validators", arena.NewNumberInt(candidate.Validators))

		list.SetArrayItem(i, obj)
	}

	writeJSON(ctx, list)
}

func (g *gateway) stats(ctx *fasthttp.RequestCtx) {
	var arena fastjson.Arena

	obj := arena.NewObject()

	if g.metrics != nil {
		obj.Set("chunks_received", arena.NewNumberInt(int(g.metrics.ReceivedChunks())))
		obj.Set("chunks_gossiped", arena.NewNumberInt(int(g.metrics.GossipedChunks())))
		obj.Set("reports", arena.NewNumberInt(int(g.metrics.Reports())))
	}

	writeJSON(ctx, obj)
}

func (g *gateway) feed(ctx *fasthttp.RequestCtx) {
	err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		c := &client{
			sink:  g.sink,
			conn:  conn,
			sendC: make(chan []byte, 64),
		}

		feedCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c.debouncer = debouncer.NewBatchDebouncer(feedCtx, c.flush, 100*time.Millisecond, 16384)

		g.sink.join <- c

		go c.writeWorker()
		c.readWorker()
	})

	if err != nil {
		log.API().Warn().Err(err).Msg("Failed to upgrade websocket.")
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, value *fastjson.Value) {
	ctx.SetContentType("application/json")
	ctx.SetBody(value.MarshalTo(nil))
}

// sink fans accepted chunk messages out to all websocket clients.
type sink struct {
	join    chan *client
	leave   chan *client
	clients map[*client]struct{}
}

func (s *sink) run(p *avail.Protocol) {
	var arena fastjson.Arena

	for {
		select {
		case <-p.Done():
			return

		case c := <-s.join:
			s.clients[c] = struct{}{}

		case c := <-s.leave:
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.sendC)
			}

		case message := <-p.Feed:
			arena.Reset()

			obj := arena.NewObject()
			obj.Set("candidate_hash", arena.NewString(message.CandidateHash.String()))
			obj.Set("index", arena.NewNumberInt(int(message.ErasureChunk.Index)))
			obj.Set("chunk_size", arena.NewNumberInt(len(message.ErasureChunk.Chunk)))

			payload := obj.MarshalTo(nil)

			for c := range s.clients {
				c.debouncer.Add(payload, len(payload), "")
			}
		}
	}
}

type client struct {
	sink      *sink
	debouncer debouncer.IDebouncer
	conn      *websocket.Conn

	sendC chan []byte
}

// flush joins a debounced batch of feed entries into a single frame.
func (c *client) flush(batch []interface{}) {
	out := make([]byte, 0, 1024)

	for i, entry := range batch {
		payload, ok := entry.([]byte)
		if !ok {
			continue
		}

		if i > 0 {
			out = append(out, '\n')
		}

		out = append(out, payload...)
	}

	select {
	case c.sendC <- out:
	default:
	}
}

func (c *client) readWorker() {
	defer func() {
		c.sink.leave <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *client) writeWorker() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendC:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if len(msg) == 0 {
				continue
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
