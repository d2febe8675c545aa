package semantic

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jordigilh/sentinel-gate/pkg/policy"
)

// securityThreshold and generalThreshold are the class-dependent minimum
// similarity scores used by the class sweep.
const (
	securityThreshold = 0.10
	generalThreshold  = 0.30
	minQueryLength    = 10
	maxQueryLength    = 1000
)

// Manager owns the current semantic Index snapshot and rebuilds it when the
// backing policy document changes, publishing the new snapshot via an
// atomic pointer so in-flight readers keep using the snapshot they began
// with (copy-on-write).
type Manager struct {
	store    *policy.Store
	embedder Embedder
	cache    ScoreCache

	current atomic.Pointer[Index]
	group   singleflight.Group
}

// NewManager builds a Manager and performs the initial index build from
// store's current snapshot.
func NewManager(ctx context.Context, store *policy.Store, embedder Embedder, cache ScoreCache) (*Manager, error) {
	m := &Manager{store: store, embedder: embedder, cache: cache}
	if err := m.rebuild(ctx, store.Current()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) rebuild(ctx context.Context, doc *policy.Document) error {
	idx, err := NewIndex(ctx, doc.Examples(), m.embedder, doc.Hash())
	if err != nil {
		return err
	}
	m.current.Store(idx)
	if m.cache != nil {
		m.cache.Purge(ctx)
	}
	return nil
}

// ensureFresh compares the current index's policy hash against the store's
// live document and rebuilds if they differ. Concurrent callers collapse
// into a single rebuild via singleflight.
func (m *Manager) ensureFresh(ctx context.Context) (*Index, error) {
	idx := m.current.Load()
	doc := m.store.Current()
	if idx.PolicyHash() == doc.Hash() {
		return idx, nil
	}

	v, err, _ := m.group.Do("rebuild", func() (interface{}, error) {
		idx := m.current.Load()
		doc := m.store.Current()
		if idx.PolicyHash() == doc.Hash() {
			return idx, nil
		}
		if err := m.rebuild(ctx, doc); err != nil {
			return nil, err
		}
		return m.current.Load(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Detect queries the semantic index for the nearest example within
// failureClass and reports whether it cleared threshold. A text shorter
// than 10 bytes is rejected outright; longer text
// is truncated to 1 000 characters before encoding.
func (m *Manager) Detect(ctx context.Context, text string, failureClass policy.FailureClass, threshold float64) (policy.FailureClass, float64, error) {
	if len(text) < minQueryLength {
		return "", 0.0, nil
	}
	if len(text) > maxQueryLength {
		text = text[:maxQueryLength]
	}

	idx, err := m.ensureFresh(ctx)
	if err != nil {
		return "", 0.5, err
	}

	cacheKey := ScoreCacheKey(text, failureClass, threshold)
	if m.cache != nil {
		if score, ok := m.cache.Get(ctx, cacheKey); ok {
			if score >= threshold {
				return failureClass, score, nil
			}
			return "", score, nil
		}
	}

	vec, err := m.embedder.Encode(ctx, text)
	if err != nil {
		return "", 0.5, err
	}

	_, score, found := idx.NearestInClass(vec, failureClass)
	if !found {
		return "", 0.0, nil
	}

	if m.cache != nil {
		m.cache.Set(ctx, cacheKey, score)
	}

	if score >= threshold {
		return failureClass, score, nil
	}
	return "", score, nil
}

// SweepResult is the outcome of a class sweep: the winning class (if any
// cleared its threshold) and its score, or the best score seen with no
// class reported if none cleared.
type SweepResult struct {
	FailureClass policy.FailureClass
	Score        float64
	ShouldAllow  bool
}

// Sweep runs Detect across every candidate class with its class-dependent
// threshold (security classes at 0.10, general classes at 0.30), takes the
// class with the highest score across the sweep, and reports it only if
// that class cleared its own threshold. When the top-scoring class misses
// its threshold, no class is reported even if a lower-scoring class
// cleared a lower threshold.
func (m *Manager) Sweep(ctx context.Context, text string) (SweepResult, error) {
	type candidate struct {
		class policy.FailureClass
		score float64
		clear bool
	}

	var candidates []candidate
	for _, class := range policy.SecurityClasses {
		_, score, err := m.Detect(ctx, text, class, securityThreshold)
		if err != nil {
			return SweepResult{}, err
		}
		candidates = append(candidates, candidate{class: class, score: score, clear: score >= securityThreshold})
	}
	for _, class := range policy.GeneralClasses {
		_, score, err := m.Detect(ctx, text, class, generalThreshold)
		if err != nil {
			return SweepResult{}, err
		}
		candidates = append(candidates, candidate{class: class, score: score, clear: score >= generalThreshold})
	}

	if len(candidates) == 0 {
		return SweepResult{ShouldAllow: true}, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	if !best.clear {
		return SweepResult{Score: best.score, ShouldAllow: true}, nil
	}
	return SweepResult{FailureClass: best.class, Score: best.score, ShouldAllow: false}, nil
}
