package config

import (
	"fmt"
	"os"
	"time"
)

// providerBatchCeiling is the largest number of texts Vertex AI accepts per call.
const providerBatchCeiling = 250

// EmbeddingConfig defines configuration for the text embedding provider.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`     // Provider type: "vertex"
	Model             string        `mapstructure:"model"`        // Model name/ID
	Project           string        `mapstructure:"project"`      // GCP project hosting the model
	Location          string        `mapstructure:"location"`     // GCP region, e.g. us-central1
	BaseURL           string        `mapstructure:"base_url"`     // Overrides the regional endpoint
	AccessToken       string        `mapstructure:"access_token"` // Bearer token (can be set directly or via env var)
	AccessTokenEnv    string        `mapstructure:"access_token_env"`
	Dimensions        int           `mapstructure:"dimensions"`
	BatchSize         int           `mapstructure:"batch_size"`
	TaskType          string        `mapstructure:"task_type"`
	QueryTaskType     string        `mapstructure:"query_task_type"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads the access token from AccessTokenEnv when it is not
// set directly.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.AccessTokenEnv != "" && c.AccessToken == "" {
		if val := os.Getenv(c.AccessTokenEnv); val != "" {
			c.AccessToken = val
		}
	}
}

// Endpoint returns the base URL of the prediction API.
func (c *EmbeddingConfig) Endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.Location)
}

// Validate checks that the embedding configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider != "vertex" {
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding: dimensions must be positive")
	}
	if c.BatchSize <= 0 || c.BatchSize > providerBatchCeiling {
		return fmt.Errorf("embedding: batch_size must be in [1, %d], got %d", providerBatchCeiling, c.BatchSize)
	}
	return nil
}

// ValidateWithCredentials validates the configuration including the fields
// needed to actually call the provider.
func (c *EmbeddingConfig) ValidateWithCredentials() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Project == "" && c.BaseURL == "" {
		return fmt.Errorf("embedding: project is required (set directly or via GCP_PROJECT)")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("embedding: access_token is required (set directly or via VERTEX_ACCESS_TOKEN)")
	}
	return nil
}

// BatchCeiling returns the provider's per-call limit.
func BatchCeiling() int {
	return providerBatchCeiling
}
