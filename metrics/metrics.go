// server/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinizap/mindmap/server/domain"
)

// Collector holds the Prometheus metrics for one server instance. Each
// collector owns its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Saves            *prometheus.CounterVec
	DocumentNodes    prometheus.Gauge
	DocumentEdges    prometheus.Gauge
	WebsocketClients prometheus.Gauge
	PeerMessages     *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Whole-document replacements by source and result",
			},
			[]string{"source", "result"},
		),
		DocumentNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "document_nodes",
			Help:      "Nodes in the current mind map",
		}),
		DocumentEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "document_connections",
			Help:      "Connections in the current mind map",
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients",
		}),
		PeerMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "peer_messages_total",
				Help:      "Messages received from peer servers by outcome",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Saves,
		c.DocumentNodes,
		c.DocumentEdges,
		c.WebsocketClients,
		c.PeerMessages,
		collectors.NewGoCollector(),
	)

	return c
}

// ObserveDocument records the size of the document now held.
func (c *Collector) ObserveDocument(doc domain.Document) {
	c.DocumentNodes.Set(float64(len(doc.Nodes)))
	c.DocumentEdges.Set(float64(len(doc.Connections)))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
