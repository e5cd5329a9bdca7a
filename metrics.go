package avail

import (
	"github.com/rcrowley/go-metrics"
)

// Metrics tracks chunk flow through the protocol.
type Metrics struct {
	registry metrics.Registry

	receivedChunks metrics.Meter
	gossipedChunks metrics.Meter
	reports        metrics.Meter
}

func NewMetrics() *Metrics {
	registry := metrics.NewRegistry()

	return &Metrics{
		registry: registry,

		receivedChunks: metrics.NewRegisteredMeter("avail.chunks.received", registry),
		gossipedChunks: metrics.NewRegisteredMeter("avail.chunks.gossiped", registry),
		reports:        metrics.NewRegisteredMeter("avail.reports", registry),
	}
}

func (m *Metrics) ReceivedChunks() int64 {
	return m.receivedChunks.Count()
}

func (m *Metrics) GossipedChunks() int64 {
	return m.gossipedChunks.Count()
}

func (m *Metrics) Reports() int64 {
	return m.reports.Count()
}
