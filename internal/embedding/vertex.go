package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/stitchrag/internal/domain"
)

// VertexConfig holds configuration for the Vertex AI prediction endpoint.
type VertexConfig struct {
	BaseURL     string
	Project     string
	Location    string
	Model       string
	AccessToken string
	Timeout     time.Duration
}

// VertexProvider calls the Vertex AI text-embedding :predict endpoint.
type VertexProvider struct {
	client   *resty.Client
	project  string
	location string
	model    string
}

// NewVertexProvider creates a provider bound to one model.
func NewVertexProvider(cfg *VertexConfig) *VertexProvider {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	if cfg.AccessToken != "" {
		client.SetAuthToken(cfg.AccessToken)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &VertexProvider{
		client:   client,
		project:  cfg.Project,
		location: cfg.Location,
		model:    cfg.Model,
	}
}

// Name returns the provider identifier used in errors and logs.
func (p *VertexProvider) Name() string {
	return "vertex"
}

// Vertex AI request/response structures
type vertexRequest struct {
	Instances  []vertexInstance  `json:"instances"`
	Parameters *vertexParameters `json:"parameters,omitempty"`
}

type vertexInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type,omitempty"`
}

type vertexParameters struct {
	OutputDimensionality int `json:"outputDimensionality,omitempty"`
}

type vertexResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values     []float32 `json:"values"`
			Statistics struct {
				TokenCount int  `json:"token_count"`
				Truncated  bool `json:"truncated"`
			} `json:"statistics"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

type vertexError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *VertexProvider) predictPath() string {
	return fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		p.project, p.location, p.model)
}

// Embed generates embeddings for req.Texts in one call.
func (p *VertexProvider) Embed(ctx context.Context, req *Request) ([]domain.Vector, error) {
	if len(req.Texts) == 0 {
		return []domain.Vector{}, nil
	}

	body := vertexRequest{Instances: make([]vertexInstance, len(req.Texts))}
	for i, text := range req.Texts {
		body.Instances[i] = vertexInstance{Content: text, TaskType: req.TaskType}
	}
	if req.Dimensionality > 0 {
		body.Parameters = &vertexParameters{OutputDimensionality: req.Dimensionality}
	}

	var resp vertexResponse
	var apiErr vertexError
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		SetError(&apiErr).
		Post(p.predictPath())
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Op: "predict", Err: err}
	}

	if httpResp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, &domain.ProviderError{Provider: p.Name(), Op: "predict",
				Err: fmt.Errorf("status %d %s: %s", httpResp.StatusCode(), apiErr.Error.Status, apiErr.Error.Message)}
		}
		return nil, &domain.ProviderError{Provider: p.Name(), Op: "predict",
			Err: fmt.Errorf("status %d", httpResp.StatusCode())}
	}

	if len(resp.Predictions) != len(req.Texts) {
		return nil, &domain.ProviderError{Provider: p.Name(), Op: "predict",
			Err: fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Predictions), len(req.Texts))}
	}

	embeddings := make([]domain.Vector, len(resp.Predictions))
	for i, pred := range resp.Predictions {
		embeddings[i] = domain.Vector(pred.Embeddings.Values)
	}
	return embeddings, nil
}
