package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copytrade_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SettlementsTotal counts Settle calls by result: ok, partial, failed, resumed.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_settlements_total",
			Help: "Stock settlements by result",
		},
		[]string{"result"},
	)

	BindingsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytrade_bindings_settled_total",
		Help: "Copy-trade bindings moved to settled",
	})

	BalanceConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytrade_balance_conflicts_total",
		Help: "Optimistic balance writes that lost a race and were retried",
	})

	CreditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytrade_credit_failures_total",
		Help: "Per-user settlement credits left unapplied after retries",
	})

	StalledSettlements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copytrade_stalled_settlements",
		Help: "Settled stocks with credits still unapplied past the stall window",
	})

	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_feed_events_total",
			Help: "Change feed events by table and operation",
		},
		[]string{"table", "op"},
	)

	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytrade_feed_dropped_total",
		Help: "Change events dropped because a subscriber buffer was full",
	})
)
