// Package metrics defines Prometheus instrumentation for an RDP connection:
// segment counts, retransmissions, drops, and the handful of latency and
// size distributions worth tracking on a reliable-datagram transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsSent counts segments transmitted, by kind (syn, ack, data, fin).
	SegmentsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rudp_segments_sent_total",
			Help: "Number of segments transmitted, by kind.",
		}, []string{"kind"})

	// SegmentsReceived counts segments accepted by the connection state
	// machine, by kind.
	SegmentsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rudp_segments_received_total",
			Help: "Number of segments received and accepted, by kind.",
		}, []string{"kind"})

	// Retransmissions counts segments retransmitted after their RTO elapsed.
	Retransmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rudp_retransmissions_total",
			Help: "Number of data segments retransmitted after RTO expiry.",
		},
	)

	// SegmentsDropped counts segments discarded after arrival: simulated
	// ingress loss, malformed datagrams, admission rejections, or a full
	// receive queue.
	SegmentsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rudp_segments_dropped_total",
			Help: "Number of segments dropped on ingress, by reason.",
		}, []string{"reason"})

	// HandshakeFailures counts Connect calls that exhausted MaxRetries
	// without completing the three-way open.
	HandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rudp_handshake_failures_total",
			Help: "Number of connection attempts that failed to establish.",
		},
	)

	// BytesTransferred tracks application bytes handed to Send or returned
	// from Recv, by direction.
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rudp_bytes_transferred_total",
			Help: "Application bytes sent or received, by direction.",
		}, []string{"direction"})

	// SendWindowOccupancy samples how many of the W in-flight slots are in
	// use at the moment a new segment is admitted.
	SendWindowOccupancy = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rudp_send_window_occupancy",
			Help:    "Number of unacknowledged segments in flight when a new one is admitted.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0..10, matching W.
		},
	)

	// AdvertisedWindow samples the receive window this side advertises each
	// time it changes by more than MSS.
	AdvertisedWindow = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "rudp_advertised_window_bytes",
			Help: "Receive window advertised to the peer, sampled on each FLOW WIN UPDATE event.",
			Buckets: []float64{
				0, 1024, 2048, 4096, 8192, 16384, 32768, 65535,
			},
		},
	)

	// RoundTripLatency tracks elapsed time between a data segment's
	// transmission and the cumulative ACK that first retires it.
	RoundTripLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "rudp_round_trip_latency_seconds",
			Help: "Time between a data segment's transmission and its acknowledgment.",
			Buckets: []float64{
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
			},
		},
	)

	// ConnectionsEstablished counts successful handshake completions, split
	// by role (initiator vs responder).
	ConnectionsEstablished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rudp_connections_established_total",
			Help: "Number of connections that reached ESTABLISHED, by role.",
		}, []string{"role"})
)
