package gateway

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusObserver is the direct-scrape alternative to the otel-backed
// Observer. Callers who already run a Prometheus registry rather than an
// otel collector wire this one instead of NewOtelObserver.
type prometheusObserver struct {
	tierDuration *prometheus.HistogramVec
	verdicts     *prometheus.CounterVec
}

// NewPrometheusObserver registers sentinel-gate's metrics against reg and
// returns an Observer backed by them.
func NewPrometheusObserver(reg prometheus.Registerer) (Observer, error) {
	tierDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "sentinel_gate_tier_duration_seconds",
		Help: "Duration of a single tier invocation, in seconds.",
	}, []string{"tier", "method"})

	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_gate_verdicts_total",
		Help: "Total verdicts issued, by action and tier.",
	}, []string{"action", "tier"})

	for _, c := range []prometheus.Collector{tierDuration, verdicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &prometheusObserver{tierDuration: tierDuration, verdicts: verdicts}, nil
}

func (o *prometheusObserver) ObserveTier(_ context.Context, tier int, method string, duration time.Duration) {
	o.tierDuration.WithLabelValues(tierLabel(tier), method).Observe(duration.Seconds())
}

func (o *prometheusObserver) ObserveVerdict(_ context.Context, v Verdict) {
	o.verdicts.WithLabelValues(string(v.Action), tierLabel(v.TierUsed)).Inc()
}

func tierLabel(tier int) string {
	switch tier {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "unknown"
	}
}
