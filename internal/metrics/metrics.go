package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FrameMessages counts admitted frame messages by status code.
	FrameMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nametagauth_frame_messages_total",
			Help: "The total number of admitted frame messages, by status.",
		},
		[]string{"status"},
	)

	// FrameMessagesDropped counts messages rejected at the admission
	// boundary. Only the rejection reason is recorded, never message
	// contents.
	FrameMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nametagauth_frame_messages_dropped_total",
			Help: "The total number of frame messages dropped at the admission boundary.",
		},
		[]string{"reason"},
	)

	// Exchanges counts code-for-token exchanges by result.
	Exchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nametagauth_exchanges_total",
			Help: "The total number of authorization-code exchanges.",
		},
		[]string{"result"},
	)

	// ExchangesWithoutVerifier counts exchanges that proceeded without a
	// stored code verifier.
	ExchangesWithoutVerifier = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nametagauth_exchanges_without_verifier_total",
			Help: "The total number of exchanges performed with no stored code verifier.",
		},
	)

	// VacuumRemoved counts expired store entries reaped by vacuum passes.
	VacuumRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nametagauth_vacuum_removed_total",
			Help: "The total number of expired entries removed by vacuum passes.",
		},
	)

	// WatchNotifications counts token-change deliveries to watch callbacks.
	WatchNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nametagauth_watch_notifications_total",
			Help: "The total number of token notifications delivered to watchers.",
		},
	)

	// DroppedPosts counts callbacks that could not be queued on the
	// dispatch loop.
	DroppedPosts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nametagauth_dropped_posts_total",
			Help: "The total number of callbacks dropped because the dispatch queue was unavailable.",
		},
	)
)
