package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SuggestLookupsTotal counts suggestion lookups by channel and result.
	SuggestLookupsTotal *prometheus.CounterVec
	// SuggestStaleTotal counts lookup responses discarded because a newer query started.
	SuggestStaleTotal *prometheus.CounterVec
	// SuggestLookupLatency records lookup latency in milliseconds.
	SuggestLookupLatency *prometheus.HistogramVec
	// CartMutationsTotal counts cart operations by document type and operation.
	CartMutationsTotal *prometheus.CounterVec
	// StockDecisionsTotal counts stock guard verdicts by document type.
	StockDecisionsTotal *prometheus.CounterVec
	// EntrySessionsOpen tracks the number of open entry sessions.
	EntrySessionsOpen prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SuggestLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_lookups_total",
			Help:      "Count of product suggestion lookups by outcome.",
		}, []string{"channel", "result"})
		SuggestStaleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_stale_responses_total",
			Help:      "Lookup responses discarded because a newer query superseded them.",
		}, []string{"channel"})
		SuggestLookupLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggest_lookup_duration_ms",
			Help:      "Latency for suggestion lookups in milliseconds.",
			Buckets:   defaultLatencyBucketsMS,
		}, []string{"channel"})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of line item mutations by document type and operation.",
		}, []string{"document", "op"})
		StockDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_decisions_total",
			Help:      "Stock guard verdicts by document type and outcome.",
		}, []string{"document", "outcome"})
		EntrySessionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entry_sessions_open",
			Help:      "Number of open line item entry sessions.",
		})

		mustRegisterCollector(reg, SuggestLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SuggestLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, SuggestStaleTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SuggestStaleTotal = v
			}
		})
		mustRegisterCollector(reg, SuggestLookupLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SuggestLookupLatency = v
			}
		})
		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, StockDecisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockDecisionsTotal = v
			}
		})
		mustRegisterCollector(reg, EntrySessionsOpen, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				EntrySessionsOpen = v
			}
		})
	})
}

// ObserveLookup records the outcome and latency of one suggestion lookup.
func ObserveLookup(channel, result string, took time.Duration) {
	if SuggestLookupsTotal != nil {
		SuggestLookupsTotal.WithLabelValues(channel, result).Inc()
	}
	if SuggestLookupLatency != nil {
		SuggestLookupLatency.WithLabelValues(channel).Observe(DurationMillis(took))
	}
}

// ObserveStale records a discarded lookup response.
func ObserveStale(channel string) {
	if SuggestStaleTotal != nil {
		SuggestStaleTotal.WithLabelValues(channel).Inc()
	}
}

// ObserveCartMutation records a line item operation.
func ObserveCartMutation(document, op string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(document, op).Inc()
	}
}

// ObserveStockDecision records a stock guard verdict.
func ObserveStockDecision(document, outcome string) {
	if StockDecisionsTotal != nil {
		StockDecisionsTotal.WithLabelValues(document, outcome).Inc()
	}
}

// SessionOpened increments the open sessions gauge.
func SessionOpened() {
	if EntrySessionsOpen != nil {
		EntrySessionsOpen.Inc()
	}
}

// SessionClosed decrements the open sessions gauge.
func SessionClosed() {
	if EntrySessionsOpen != nil {
		EntrySessionsOpen.Dec()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
