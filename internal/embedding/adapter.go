package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
)

// MaxBatchSize is the provider-imposed ceiling on texts per call.
const MaxBatchSize = 250

// AdapterConfig holds batching and call-guard settings.
type AdapterConfig struct {
	Dimensions        int
	BatchSize         int
	TaskType          string
	QueryTaskType     string
	RequestsPerSecond float64 // <= 0 disables rate limiting
	Burst             int
	// BreakerFailures is the number of consecutive failed calls that opens
	// the breaker; <= 0 uses 5.
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// Adapter issues provider calls in order-preserving sequential batches.
// A failed batch fails the whole call; no partial results are returned.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// NewAdapter wraps provider with batching, rate limiting and a circuit breaker.
func NewAdapter(provider Provider, cfg *AdapterConfig) *Adapter {
	c := *cfg
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.TaskType == "" {
		c.TaskType = "RETRIEVAL_DOCUMENT"
	}
	if c.QueryTaskType == "" {
		c.QueryTaskType = c.TaskType
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := c.Burst
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	failures := uint32(c.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name() + "-embedding",
		MaxRequests: 1,
		Timeout:     c.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Adapter{
		provider: provider,
		cfg:      c,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
	}
}

// Dimensions returns the configured text embedding width.
func (a *Adapter) Dimensions() int {
	return a.cfg.Dimensions
}

// EmbedBatch embeds texts in groups of at most batchSize, one provider call
// per group, strictly one after another. The result has one vector per text
// in input order.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string, dimensionality, batchSize int) ([]domain.Vector, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	out := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := a.call(ctx, &Request{
			Texts:          texts[start:end],
			TaskType:       a.cfg.TaskType,
			Dimensionality: dimensionality,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed texts %d-%d of %d: %w", start, end, len(texts), err)
		}
		if err := checkBatch(vecs, end-start, dimensionality); err != nil {
			return nil, fmt.Errorf("failed to embed texts %d-%d of %d: %w", start, end, len(texts), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedDocuments embeds texts with the configured dimensionality and batch size.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([]domain.Vector, error) {
	return a.EmbedBatch(ctx, texts, a.cfg.Dimensions, a.cfg.BatchSize)
}

// EmbedQuery returns exactly one vector for text.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := a.call(ctx, &Request{
		Texts:          []string{text},
		TaskType:       a.cfg.QueryTaskType,
		Dimensionality: a.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := checkBatch(vecs, 1, a.cfg.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vecs[0], nil
}

func (a *Adapter) call(ctx context.Context, req *Request) ([]domain.Vector, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.provider.Embed(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ProviderError{Provider: a.provider.Name(), Op: "embed", Err: err}
		}
		return nil, err
	}
	return result.([]domain.Vector), nil
}

func checkBatch(vecs []domain.Vector, want, dimensionality int) error {
	if len(vecs) != want {
		return &domain.ProviderError{Provider: "embedding", Op: "embed",
			Err: fmt.Errorf("got %d vectors for %d texts", len(vecs), want)}
	}
	if dimensionality <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != dimensionality {
			return &domain.DimensionError{What: fmt.Sprintf("text embedding %d", i), Got: len(v), Want: dimensionality}
		}
	}
	return nil
}
