package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "message_service",
			Name:      "messages_sent_total",
			Help:      "Total number of send attempts by message type and outcome.",
		},
		[]string{"type", "outcome"}, // outcome: success, validation_error, store_error, blob_error
	)

	sendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "message_service",
			Name:      "send_duration_seconds",
			Help:      "Duration of the delivery pipeline.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	deliveredAckFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "message_service",
			Name:      "delivered_ack_failures_total",
			Help:      "Messages left in status sent because the delivered write failed.",
		},
	)

	selfDestructCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "message_service",
			Name:      "self_destruct_total",
			Help:      "Self-destruct executions by outcome.",
		},
		[]string{"outcome"}, // destroyed, already_gone, blob_error, store_error
	)

	selfDestructPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "message_service",
			Name:      "self_destruct_pending",
			Help:      "Self-destruct tasks waiting for their deadline.",
		},
	)

	readReceiptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "message_service",
			Name:      "read_receipts_total",
			Help:      "Mark-read calls by outcome.",
		},
		[]string{"outcome"}, // marked, already_read, not_found, error
	)

	feedSubscriptionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "message_service",
			Name:      "feed_subscriptions",
			Help:      "Active live feed subscriptions.",
		},
	)

	feedSnapshotsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "message_service",
			Name:      "feed_snapshots_total",
			Help:      "Snapshots delivered to feed observers.",
		},
		[]string{"outcome"}, // delivered, query_error
	)
)
