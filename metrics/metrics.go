// Package metrics provides Prometheus metrics for the dip buyer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_signals_detected_total",
		Help: "Breached thresholds emitted by the signal engine",
	})
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_orders_placed_total",
		Help: "Orders accepted by the exchange",
	})
	OrdersFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_orders_filled_total",
		Help: "Orders observed filled",
	})
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_orders_expired_total",
		Help: "Limit orders canceled after the expiry window",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_orders_rejected_total",
		Help: "Orders rejected locally or closed by the exchange",
	})
	GatewayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_gateway_errors_total",
		Help: "Exchange gateway call failures",
	})
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbuyer_notifications_dropped_total",
		Help: "Notifications dropped because the dispatch queue was full",
	})
	PendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipbuyer_pending_orders",
		Help: "Limit orders currently tracked as PENDING",
	})
	OrdersInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipbuyer_orders_in_progress",
		Help: "Submitted orders not yet terminal",
	})
	FreeUSDT = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipbuyer_free_usdt",
		Help: "Free USDT at the last balance check",
	})
	DailyOpenPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dipbuyer_daily_open_price",
		Help: "Cached daily open price per symbol",
	}, []string{"symbol"})
)

// StartMetricsServer 启动 Prometheus 指标服务器。
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
