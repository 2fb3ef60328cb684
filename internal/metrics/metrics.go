package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"source"},
	)
	TicksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_rejected_total", Help: "Ticks dropped at validation"},
		[]string{"reason"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ingest_queue_depth", Help: "Ticks waiting in the ingestion queue"},
	)
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scan_cycles_total", Help: "Completed scanner cycles"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Arbitrage signals emitted"},
		[]string{"asset"},
	)
	ConfirmRejects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "classifier_rejects_total", Help: "Gate-passing candidates rejected by the classifier"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_total", Help: "Alert deliveries by sink and outcome"},
		[]string{"sink", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TicksRejected, QueueDepth, ScansTotal, SignalsTotal, ConfirmRejects, AlertsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
