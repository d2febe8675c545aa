package semantic

import (
	"context"

	"github.com/jordigilh/sentinel-gate/pkg/policy"
	"github.com/jordigilh/sentinel-gate/pkg/shared/mathutil"
)

// Example is one embedded policy example: the Tier 2 analogue of the
// teacher's vector.ActionPattern, carrying a failure class instead of a
// remediation action.
type Example struct {
	ID           string
	FailureClass policy.FailureClass
	Text         string
	Embedding    []float32
	Rank         int
	Similarity   float64
}

// Index is a flat inner-product search structure over a fixed set of
// embedded policy examples. Because embeddings are unit-normalized, inner
// product equals cosine similarity.
type Index struct {
	examples   []Example
	policyHash string
}

// NewIndex encodes each policy example with embedder and builds a flat
// search index tagged with the policy hash it was built from.
func NewIndex(ctx context.Context, examples []policy.Example, embedder Embedder, policyHash string) (*Index, error) {
	out := make([]Example, 0, len(examples))
	for i, ex := range examples {
		vec, err := embedder.Encode(ctx, ex.Text)
		if err != nil {
			return nil, err
		}
		out = append(out, Example{
			ID:           idFor(i, ex),
			FailureClass: ex.FailureClass,
			Text:         ex.Text,
			Embedding:    vec,
		})
	}
	return &Index{examples: out, policyHash: policyHash}, nil
}

func idFor(i int, ex policy.Example) string {
	return string(ex.FailureClass) + "#" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// PolicyHash reports the policy hash this index was built from.
func (idx *Index) PolicyHash() string {
	return idx.policyHash
}

// Len reports the number of examples in the index.
func (idx *Index) Len() int {
	return len(idx.examples)
}

// Nearest returns the single nearest example to query by cosine similarity,
// and the similarity score. Returns (zero value, 0, false) for an empty
// index.
func (idx *Index) Nearest(query []float32) (Example, float64, bool) {
	if len(idx.examples) == 0 {
		return Example{}, 0, false
	}

	queryF64 := toFloat64(query)
	best := idx.examples[0]
	bestScore := mathutil.CosineSimilarity(queryF64, toFloat64(best.Embedding))

	for _, ex := range idx.examples[1:] {
		score := mathutil.CosineSimilarity(queryF64, toFloat64(ex.Embedding))
		if score > bestScore {
			bestScore = score
			best = ex
		}
	}

	best.Similarity = bestScore
	return best, bestScore, true
}

// NearestInClass returns the single nearest example within failureClass,
// restricting the search the way a class-sweep query does.
func (idx *Index) NearestInClass(query []float32, failureClass policy.FailureClass) (Example, float64, bool) {
	queryF64 := toFloat64(query)
	var best Example
	bestScore := -2.0 // below any possible cosine similarity
	found := false

	for _, ex := range idx.examples {
		if ex.FailureClass != failureClass {
			continue
		}
		score := mathutil.CosineSimilarity(queryF64, toFloat64(ex.Embedding))
		if !found || score > bestScore {
			bestScore = score
			best = ex
			found = true
		}
	}

	if !found {
		return Example{}, 0, false
	}
	best.Similarity = bestScore
	return best, bestScore, true
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
