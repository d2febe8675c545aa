package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/pkg/shared/httpclient"
)

// embeddingDimension is the fixed vector width used for the life of the
// process (Design Notes §9: a pluggable embedding interface with unit-
// normalized output and a fixed dimension).
const embeddingDimension = 64

// Embedder turns text into a unit-norm embedding of fixed dimension.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashingEmbedder is the zero-dependency default embedder: a deterministic
// bag-of-n-grams hash projected into a fixed-width vector and L2-normalized.
// No external model call, same process, same result for the same text,
// giving the semantic index something cosine-comparable to search over
// without a hosted model dependency.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder builds a HashingEmbedder with the process-wide fixed
// dimension.
func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{dimension: embeddingDimension}
}

func (h *HashingEmbedder) Dimension() int {
	return h.dimension
}

// Encode hashes each trigram of text into a bucket of the output vector,
// then L2-normalizes. Case-folded and whitespace-collapsed so trivial
// formatting differences don't change the embedding.
func (h *HashingEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	vec := make([]float32, h.dimension)

	grams := ngrams(normalized, 3)
	for _, g := range grams {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(g))
		bucket := hasher.Sum32() % uint32(h.dimension)
		sign := float32(1)
		if hasher.Sum32()%2 == 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	return normalizeVector(vec), nil
}

func ngrams(s string, n int) []string {
	if len(s) < n {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

// RemoteEmbedder calls a hosted embedding service over HTTP, for
// deployments that want a model-backed vector space instead of
// HashingEmbedder's local hash projection. Transient failures (timeouts,
// connection resets) are retried under DefaultRetryConfig before giving
// up; callers typically fall back to HashingEmbedder on error rather than
// failing the request outright.
type RemoteEmbedder struct {
	endpoint  string
	dimension int
	client    *http.Client
	retrier   *Retrier
}

// NewRemoteEmbedder builds a RemoteEmbedder against endpoint, which must
// accept {"text": "..."} and respond with {"embedding": [...]} of the
// given dimension.
func NewRemoteEmbedder(endpoint string, dimension int, logger *logrus.Logger) *RemoteEmbedder {
	return &RemoteEmbedder{
		endpoint:  endpoint,
		dimension: dimension,
		client:    httpclient.NewClient(httpclient.EmbeddingServiceClientConfig()),
		retrier:   NewRetrier(DefaultRetryConfig(), logger),
	}
}

func (r *RemoteEmbedder) Dimension() int {
	return r.dimension
}

type remoteEmbedRequest struct {
	Text string `json:"text"`
}

type remoteEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Encode posts text to the embedding service and returns its response,
// L2-normalized to match HashingEmbedder's contract. Retried on transient
// transport errors; any status other than 200 OK is treated as
// non-retryable.
func (r *RemoteEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	result, err := r.retrier.ExecuteWithType(ctx, func(ctx context.Context, _ int) (any, error) {
		return r.encodeOnce(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (r *RemoteEmbedder) encodeOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(remoteEmbedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("remote embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, WrapRetryableError(err, true, "embedding service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapRetryableError(fmt.Errorf("remote embedder: status %d", resp.StatusCode), false, "embedding service rejected request")
	}

	var decoded remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("remote embedder: decode response: %w", err)
	}

	return normalizeVector(decoded.Embedding), nil
}

func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
