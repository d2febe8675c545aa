// Package stats implements the Statistics component (C9): monotonic
// per-tier counters, distribution percentages, and a health check.
package stats

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func tierAttribute(tier int) attribute.KeyValue {
	return attribute.String("tier", strconv.Itoa(tier))
}

// healthyTotalFloor is the minimum total request count before CheckHealth
// evaluates the distribution bounds; below it, the data is not yet
// statistically meaningful.
const healthyTotalFloor = 100

// Distribution bounds for each tier, evaluated once total >= healthyTotalFloor.
const (
	tier1MinPct = 90.0
	tier1MaxPct = 98.0
	tier2MinPct = 2.0
	tier2MaxPct = 8.0
	tier3MinPct = 0.0
	tier3MaxPct = 5.0
)

// Stats holds atomic, monotonic per-tier request counters, optionally
// mirrored into an otel counter instrument for a caller-supplied
// MeterProvider.
type Stats struct {
	tier1 atomic.Uint64
	tier2 atomic.Uint64
	tier3 atomic.Uint64

	detections metric.Int64Counter
}

// New builds a zeroed Stats with no otel mirroring.
func New() *Stats {
	return &Stats{}
}

// NewWithMeter builds a zeroed Stats that also mirrors every RecordTier
// call into an "llm_detections_total" counter on meter, so a caller
// wiring a real Prometheus exporter onto the supplied MeterProvider gets
// tier-labeled detection counts without the core depending on the
// exporter itself. A nil meter behaves exactly like New().
func NewWithMeter(meter metric.Meter) (*Stats, error) {
	if meter == nil {
		return New(), nil
	}
	counter, err := meter.Int64Counter(
		"llm_detections_total",
		metric.WithDescription("Count of LLM safety detections by tier"),
	)
	if err != nil {
		return nil, err
	}
	return &Stats{detections: counter}, nil
}

// RecordTier increments the counter for the tier (1, 2, or 3) that
// produced a request's final result. Recording an out-of-range tier is a
// caller error and is silently ignored, since the statistics are
// observability-only and must never fail a request.
func (s *Stats) RecordTier(tier int) {
	switch tier {
	case 1:
		s.tier1.Add(1)
	case 2:
		s.tier2.Add(1)
	case 3:
		s.tier3.Add(1)
	default:
		return
	}

	if s.detections != nil {
		s.detections.Add(context.Background(), 1, metric.WithAttributes(
			tierAttribute(tier),
		))
	}
}

// Total returns the sum of every tier's counter.
func (s *Stats) Total() uint64 {
	return s.tier1.Load() + s.tier2.Load() + s.tier3.Load()
}

// Snapshot is an immutable point-in-time read of the counters.
type Snapshot struct {
	Total           uint64
	PerTier         [3]uint64
	DistributionPct [3]float64
	Healthy         bool
	Message         string
}

// Distribution returns the current counters and their percentage share of
// the total.
func (s *Stats) Distribution() Snapshot {
	t1, t2, t3 := s.tier1.Load(), s.tier2.Load(), s.tier3.Load()
	total := t1 + t2 + t3

	snap := Snapshot{
		Total:   total,
		PerTier: [3]uint64{t1, t2, t3},
	}
	if total > 0 {
		snap.DistributionPct = [3]float64{
			100 * float64(t1) / float64(total),
			100 * float64(t2) / float64(total),
			100 * float64(t3) / float64(total),
		}
	}
	return snap
}

// CheckHealth reports whether the tier distribution falls within the
// expected bounds. Below healthyTotalFloor total requests, it reports
// healthy with an insufficient-data message rather than evaluating bounds
// against a noisy sample.
func (s *Stats) CheckHealth() (healthy bool, message string) {
	snap := s.Distribution()
	if snap.Total < healthyTotalFloor {
		return true, "insufficient data: fewer than 100 requests observed"
	}

	p1, p2, p3 := snap.DistributionPct[0], snap.DistributionPct[1], snap.DistributionPct[2]

	switch {
	case p1 < tier1MinPct || p1 > tier1MaxPct:
		return false, "tier 1 share out of expected bounds [90%, 98%]"
	case p2 < tier2MinPct || p2 > tier2MaxPct:
		return false, "tier 2 share out of expected bounds [2%, 8%]"
	case p3 < tier3MinPct || p3 > tier3MaxPct:
		return false, "tier 3 share out of expected bounds [0%, 5%]"
	default:
		return true, "tier distribution within expected bounds"
	}
}

// Reset returns every counter to zero.
func (s *Stats) Reset() {
	s.tier1.Store(0)
	s.tier2.Store(0)
	s.tier3.Store(0)
}
