package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocationUpdatesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "location_updates_accepted_total",
		Help: "Location updates accepted into the store",
	})
	LocationUpdatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "location_updates_rejected_total",
		Help: "Location updates rejected by the store",
	}, []string{"reason"})
	ActiveTrackedRides = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ride_dispatch", Name: "active_tracked_rides",
		Help: "Rides with a live location record",
	})
	TrackingEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "tracking_events_dropped_total",
		Help: "Store change notifications dropped because the broadcast queue was full",
	})

	BroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "broadcast_deliveries_total",
		Help: "Events delivered to subscriber connections",
	}, []string{"event"})
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "broadcast_failures_total",
		Help: "Per-subscriber delivery failures (isolated, never fatal)",
	})
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ride_dispatch", Name: "connected_clients",
		Help: "Live WebSocket connections",
	})
)
