package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "querycache",
		Name:      "requests_total",
		Help:      "Query cache reads by query name and result (hit, miss).",
	}, []string{"query", "result"})

	CacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "querycache",
		Name:      "invalidations_total",
		Help:      "Cache entries marked stale, by query name.",
	}, []string{"query"})

	CacheRefetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "querycache",
		Name:      "refetches_total",
		Help:      "Fetcher executions by query name and outcome (ok, error).",
	}, []string{"query", "outcome"})

	NotificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "realtime",
		Name:      "published_total",
		Help:      "Row-change notifications published, by table and event.",
	}, []string{"table", "event"})

	NotificationsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "realtime",
		Name:      "received_total",
		Help:      "Row-change notifications delivered to subscribers, by table and event.",
	}, []string{"table", "event"})

	ComposerSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workspace",
		Subsystem: "chat",
		Name:      "composer_sends_total",
		Help:      "Composer submissions by outcome (sent, skipped, failed).",
	}, []string{"outcome"})

	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workspace",
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Currently identified websocket connections.",
	})
)

func init() {
	prometheus.MustRegister(
		CacheRequests,
		CacheInvalidations,
		CacheRefetches,
		NotificationsPublished,
		NotificationsReceived,
		ComposerSends,
		GatewayConnections,
	)
}
