package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmrelay_messages_total",
			Help: "Voicemails by relay stage",
		},
		[]string{"stage"}, // found|posted|acked|failed|skipped
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmrelay_errors_total",
			Help: "Relay errors by kind",
		},
		[]string{"kind"}, // config|auth|api|delivery
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vmrelay_pass_duration_seconds",
			Help:    "Duration of one fetch-post-acknowledge pass",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	LastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmrelay_last_success_timestamp_seconds",
			Help: "Unix time of the last pass that completed without a fatal error",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{MessagesTotal, ErrorsTotal, PassDuration, LastSuccess}
}

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(collectors()...)
}

// Push sends the relay collectors to a Pushgateway. A one-shot run exits before
// anything could scrape it, so this is how `run` reports.
func Push(ctx context.Context, gatewayURL, job string) error {
	p := push.New(gatewayURL, job)
	for _, c := range collectors() {
		p = p.Collector(c)
	}
	return p.PushContext(ctx)
}
