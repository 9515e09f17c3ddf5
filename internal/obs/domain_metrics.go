package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesTotal counts checkout outcomes.
	SalesTotal *prometheus.CounterVec
	// SaleAmountTotal accumulates presented sale totals by payment method.
	SaleAmountTotal *prometheus.CounterVec
	// RefundsTotal counts refund submissions by outcome.
	RefundsTotal *prometheus.CounterVec
	// ScanTotal counts barcode scans by outcome (matched, no_match, suppressed).
	ScanTotal *prometheus.CounterVec
	// OrdersTotal counts order lifecycle transitions.
	OrdersTotal *prometheus.CounterVec
	// StockLowTotal counts low-stock alerts raised after checkout.
	StockLowTotal prometheus.Counter
	// RefundLockWait records how long refund submissions waited on the per-sale lock in milliseconds.
	RefundLockWait prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		SaleAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_amount_total",
			Help:      "Sum of completed sale totals by payment method.",
		}, []string{"payment_method"})
		RefundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Count of refund submissions by outcome.",
		}, []string{"result"})
		ScanTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_total",
			Help:      "Count of barcode scans by outcome.",
		}, []string{"result"})
		OrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Count of order lifecycle transitions.",
		}, []string{"transition"})
		StockLowTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_low_total",
			Help:      "Number of low-stock alerts raised.",
		})
		RefundLockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refund_lock_wait_ms",
			Help:      "Time spent waiting for the per-sale refund lock in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})

		SalesTotal = register(reg, SalesTotal)
		SaleAmountTotal = register(reg, SaleAmountTotal)
		RefundsTotal = register(reg, RefundsTotal)
		ScanTotal = register(reg, ScanTotal)
		OrdersTotal = register(reg, OrdersTotal)
		StockLowTotal = register(reg, StockLowTotal)
		RefundLockWait = register(reg, RefundLockWait)
	})
}

// CountSale records a checkout outcome when metrics are registered.
func CountSale(result string) {
	if SalesTotal != nil {
		SalesTotal.WithLabelValues(result).Inc()
	}
}

// AddSaleAmount adds a completed sale's total to the running amount.
func AddSaleAmount(method string, amount float64) {
	if SaleAmountTotal != nil {
		SaleAmountTotal.WithLabelValues(method).Add(amount)
	}
}

// CountRefund records a refund outcome when metrics are registered.
func CountRefund(result string) {
	if RefundsTotal != nil {
		RefundsTotal.WithLabelValues(result).Inc()
	}
}

// CountScan records a scan outcome when metrics are registered.
func CountScan(result string) {
	if ScanTotal != nil {
		ScanTotal.WithLabelValues(result).Inc()
	}
}

// CountOrder records an order transition when metrics are registered.
func CountOrder(transition string) {
	if OrdersTotal != nil {
		OrdersTotal.WithLabelValues(transition).Inc()
	}
}

// CountStockLow records a low-stock alert.
func CountStockLow() {
	if StockLowTotal != nil {
		StockLowTotal.Inc()
	}
}

// ObserveRefundLockWait records lock wait time in milliseconds.
func ObserveRefundLockWait(ms float64) {
	if RefundLockWait != nil {
		RefundLockWait.Observe(ms)
	}
}
