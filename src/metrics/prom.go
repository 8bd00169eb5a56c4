package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var admittedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casha_transactions_admitted",
	Help: "Number of transactions committed to the ledger",
}, []string{"kind"})

var admissionErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casha_admission_errors",
	Help: "Number of rejected submissions by error kind",
}, []string{"kind"})

var confirmationCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "casha_transactions_confirmed",
	Help: "Number of transactions that reached the confirmation threshold",
})

var admissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "casha_admission_seconds",
	Help:    "Time spent admitting a transaction",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
})

var confirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "casha_confirmation_seconds",
	Help:    "Time between admission and confirmation of a transaction",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
})

var truncatedWalks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "casha_confirmation_walks_truncated",
	Help: "Confirmation walks cut short by the traversal depth bound",
})

var dagGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "casha_dag_transactions",
	Help: "DAG transaction counts by state",
}, []string{"state"})

var tipsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "casha_dag_tips",
	Help: "Current size of the tip set",
})

var accountsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "casha_accounts",
	Help: "Registered accounts",
})

var feedErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "casha_feed_errors",
	Help: "Failed writes to the recent transaction feed",
})

func RecordAdmission(kind string, elapsed time.Duration) {
	admittedCounter.WithLabelValues(kind).Inc()
	admissionLatency.Observe(elapsed.Seconds())
}

func RecordAdmissionError(kind string) {
	admissionErrorCounter.WithLabelValues(kind).Inc()
}

func RecordConfirmation(latency time.Duration) {
	confirmationCounter.Inc()
	confirmationLatency.Observe(latency.Seconds())
}

func RecordTruncatedWalk() {
	truncatedWalks.Inc()
}

func RecordFeedError() {
	feedErrorCounter.Inc()
}

func UpdateDAGGauges(total, confirmed, pending, tips, accounts int) {
	dagGauge.WithLabelValues("total").Set(float64(total))
	dagGauge.WithLabelValues("confirmed").Set(float64(confirmed))
	dagGauge.WithLabelValues("pending").Set(float64(pending))
	tipsGauge.Set(float64(tips))
	accountsGauge.Set(float64(accounts))
}

func StartPromServer(log *zap.Logger, port string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("hosting prom stats on " + port + "/metrics")
		if err := http.ListenAndServe(port, mux); err != nil {
			log.Error("prom server stopped", zap.Error(err))
		}
	}()
}
