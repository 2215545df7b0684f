// Package metrics holds the Prometheus instruments the dashboard updates
// during operation, served at /metrics in text exposition format:
//   - dashboard_logins_total / dashboard_logins_failed_total
//   - dashboard_relogins_total            (session-expiry recoveries)
//   - dashboard_orders_total{op,outcome}  (op: place|modify|cancel)
//   - dashboard_engine_decisions_total{action}
//   - dashboard_http_requests_total{route,code}
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Logins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_logins_total",
		Help: "Successful QuickAuth logins",
	})

	LoginsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_logins_failed_total",
		Help: "QuickAuth logins rejected by the broker",
	})

	Relogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_relogins_total",
		Help: "Automatic re-logins after a session-expiry reply",
	})

	Orders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_orders_total",
		Help: "Order gateway calls by operation and outcome",
	}, []string{"op", "outcome"})

	EngineDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_engine_decisions_total",
		Help: "Engine decisions by action",
	}, []string{"action"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "Dashboard API requests by route and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		Logins,
		LoginsFailed,
		Relogins,
		Orders,
		EngineDecisions,
		HTTPRequests,
	)
}
