package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ViewPfxs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpview_view_pfxs",
			Help: "Number of distinct prefixes currently tracked by the view.",
		},
	)

	ViewPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpview_view_peers",
			Help: "Number of peers currently tracked by the view.",
		},
	)

	ViewActivePfxPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpview_view_active_pfx_peers",
			Help: "Number of active (announced) pfx-peer edges in the view.",
		},
	)

	EngineElemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_engine_elems_total",
			Help: "Elements processed by the engine.",
		},
		[]string{"collector", "elem_type", "outcome"},
	)

	EngineEOVRIBTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_engine_eovrib_total",
			Help: "End-of-valid-RIB interval boundaries processed, by collector.",
		},
		[]string{"collector"},
	)

	CodecEncodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_codec_encode_duration_seconds",
			Help:    "View encode latency, by codec.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"codec"},
	)

	CodecDecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_codec_decode_errors_total",
			Help: "View/element decode failures, by error kind.",
		},
		[]string{"kind"},
	)

	TransportReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_transport_reconnects_total",
			Help: "Transport reconnect attempts, by identity.",
		},
		[]string{"identity"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default Prometheus registry.
// Idempotent: later calls are no-ops, so callers (and tests) can invoke it
// more than once without MustRegister panicking on a duplicate collector.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ViewPfxs,
			ViewPeers,
			ViewActivePfxPeers,
			EngineElemsTotal,
			EngineEOVRIBTotal,
			CodecEncodeDuration,
			CodecDecodeErrorsTotal,
			TransportReconnectsTotal,
		)
	})
}
