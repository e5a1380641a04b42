package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BridgeMetrics struct {
	VotesAccepted  *prometheus.CounterVec
	DecodeFailures prometheus.Counter
	Pushes         *prometheus.CounterVec
	Reconnects     prometheus.Counter
	MirrorDropped  prometheus.Counter
	ApplyTime      prometheus.Histogram
}

func NewBridgeMetrics(reg prometheus.Registerer, namespace, subsystem string) *BridgeMetrics {
	factory := promauto.With(reg)
	return &BridgeMetrics{
		VotesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "votes_accepted_total",
				Help:      "Total number of votes decoded, persisted and counted",
			},
			[]string{"candidate"},
		),
		DecodeFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "decode_failures_total",
				Help:      "Total number of device lines that were not valid votes",
			},
		),
		Pushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pushes_total",
				Help:      "Push attempts to the remote endpoint by result",
			},
			[]string{"result"},
		),
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconnects_total",
				Help:      "Times the device stream was lost and reopened",
			},
		),
		MirrorDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "mirror_dropped_total",
				Help:      "Accepted votes not mirrored to the broker because the queue was full",
			},
		),
		ApplyTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "apply_duration_seconds",
				Help:      "Histogram of time spent persisting and counting one vote",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
	}
}
