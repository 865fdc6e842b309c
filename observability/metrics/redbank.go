package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RedBankMetrics struct {
	messagesProcessed *prometheus.CounterVec
	messagesFailed    *prometheus.CounterVec
	liquidations      prometheus.Counter
	marketUtilization *prometheus.GaugeVec
	marketBorrowRate  *prometheus.GaugeVec
}

var (
	redbankOnce     sync.Once
	redbankRegistry *RedBankMetrics
)

func RedBank() *RedBankMetrics {
	redbankOnce.Do(func() {
		redbankRegistry = &RedBankMetrics{
			messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "redbank_messages_processed_total",
				Help: "Count of successfully applied money market messages by type.",
			}, []string{"type"}),
			messagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "redbank_messages_failed_total",
				Help: "Count of rejected money market messages by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "redbank_liquidations_total",
				Help: "Count of executed liquidations.",
			}),
			marketUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_utilization",
				Help: "Utilization ratio per market after the last applied message.",
			}, []string{"asset"}),
			marketBorrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_borrow_rate",
				Help: "Annualized borrow rate per market after the last applied message.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			redbankRegistry.messagesProcessed,
			redbankRegistry.messagesFailed,
			redbankRegistry.liquidations,
			redbankRegistry.marketUtilization,
			redbankRegistry.marketBorrowRate,
		)
	})
	return redbankRegistry
}

func (m *RedBankMetrics) ObserveMessage(msgType string, ok bool) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	if ok {
		m.messagesProcessed.WithLabelValues(msgType).Inc()
		return
	}
	m.messagesFailed.WithLabelValues(msgType).Inc()
}

func (m *RedBankMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

func (m *RedBankMetrics) SetMarketGauges(asset string, utilization, borrowRate float64) {
	if m == nil || asset == "" {
		return
	}
	m.marketUtilization.WithLabelValues(asset).Set(utilization)
	m.marketBorrowRate.WithLabelValues(asset).Set(borrowRate)
}
