package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hiro-Washi/da-icn/internal/retrieval"
)

// Collector turns telemetry events into Prometheus metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	requestsSent      prometheus.Counter
	timeouts          prometheus.Counter
	responsesReceived prometheus.Counter
	receivedBytes     prometheus.Counter
	chunkRTT          prometheus.Histogram
}

var _ retrieval.Sink = (*Collector)(nil)

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daicn_requests_sent_total",
			Help: "Chunk requests (Interests) sent",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daicn_timeouts_total",
			Help: "Receive waits that ended without a packet",
		}),
		responsesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daicn_responses_received_total",
			Help: "Accepted chunk responses",
		}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daicn_received_bytes_total",
			Help: "Payload bytes of accepted chunk responses",
		}),
		chunkRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "daicn_chunk_rtt_milliseconds",
			Help:    "Round-trip time between a chunk request and its response",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 14),
		}),
	}
	c.registry.MustRegister(
		c.requestsSent,
		c.timeouts,
		c.responsesReceived,
		c.receivedBytes,
		c.chunkRTT,
	)
	return c
}

// Record updates the metric matching ev's type.
func (c *Collector) Record(ev retrieval.Event) error {
	switch ev.Type {
	case retrieval.EventRequestSent:
		c.requestsSent.Inc()
	case retrieval.EventTimeout:
		c.timeouts.Inc()
	case retrieval.EventResponseReceived:
		c.responsesReceived.Inc()
		if ev.PayloadSize != nil {
			c.receivedBytes.Add(float64(*ev.PayloadSize))
		}
		if ev.RTTMs != nil {
			c.chunkRTT.Observe(*ev.RTTMs)
		}
	}
	return nil
}

// Registry exposes the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
