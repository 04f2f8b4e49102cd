package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests    *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	LogWrites       *prometheus.CounterVec
	LogReads        *prometheus.CounterVec
	TelegramUpdates prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chatrecall",
				Name:      "chat_requests_total",
				Help:      "Chat requests by provider and outcome (ok, invalid, error)",
			}, []string{"provider", "outcome"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "chatrecall",
				Name:      "provider_latency_seconds",
				Help:      "Latency of a single provider completion call",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			}, []string{"provider"}),
			LogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chatrecall",
				Name:      "log_writes_total",
				Help:      "Exchange persistence attempts by outcome (logged, skipped, failed)",
			}, []string{"outcome"}),
			LogReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chatrecall",
				Name:      "log_reads_total",
				Help:      "History and search reads by outcome (ok, unconfigured, failed)",
			}, []string{"outcome"}),
			TelegramUpdates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "chatrecall",
				Name:      "telegram_updates_total",
				Help:      "Total telegram updates received",
			}),
		}
		prometheus.MustRegister(global.ChatRequests, global.ProviderLatency, global.LogWrites, global.LogReads, global.TelegramUpdates)
	})
	return global
}
