package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Index     IndexConfig     `mapstructure:"index"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Image     ImageConfig     `mapstructure:"image"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Query     QueryConfig     `mapstructure:"query"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// IndexConfig selects the vector index backend and its collection layout.
type IndexConfig struct {
	Backend         string `mapstructure:"backend"` // qdrant, memory
	Collection      string `mapstructure:"collection"`
	Metric          string `mapstructure:"metric"`
	InsertBatchSize int    `mapstructure:"insert_batch_size"`
}

// StorageConfig configures the S3-compatible bucket holding raw documents
// and retrieval outputs.
type StorageConfig struct {
	Type           string `mapstructure:"type"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	PublicURL      string `mapstructure:"public_url"`
	DownloadPrefix string `mapstructure:"download_prefix"`
	UploadPrefix   string `mapstructure:"upload_prefix"`
}

type ImageConfig struct {
	Dimensions int `mapstructure:"dimensions"`
}

type ChunkerConfig struct {
	Mode                string  `mapstructure:"mode"` // threshold, percentile
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	Percentile          float64 `mapstructure:"percentile"`
}

type PipelineConfig struct {
	InputDir       string `mapstructure:"input_dir"`
	OutputDir      string `mapstructure:"output_dir"`
	JSONOutputDir  string `mapstructure:"json_output_dir"`
	TextSubdir     string `mapstructure:"text_subdir"`
	ImageSubdir    string `mapstructure:"image_subdir"`
	EmbedBatchSize int    `mapstructure:"embed_batch_size"`
}

type QueryConfig struct {
	TextFile        string  `mapstructure:"text_file"`
	ImageVectorFile string  `mapstructure:"image_vector_file"`
	OutputFile      string  `mapstructure:"output_file"`
	TopK            int     `mapstructure:"top_k"`
	TextWeight      float64 `mapstructure:"text_weight"`
	ImageWeight     float64 `mapstructure:"image_weight"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("embedding.project", "GCP_PROJECT")
	v.BindEnv("embedding.access_token", "VERTEX_ACCESS_TOKEN")
	v.BindEnv("database.dsn", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/runs.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)

	v.SetDefault("index.backend", "qdrant")
	v.SetDefault("index.collection", "semantic-text-image-collection")
	v.SetDefault("index.metric", "cosine")
	v.SetDefault("index.insert_batch_size", 500)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "crochet-patterns-bucket")
	v.SetDefault("storage.download_prefix", "training")
	v.SetDefault("storage.upload_prefix", "rag/rag_json_outputs")

	v.SetDefault("embedding.provider", "vertex")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.location", "us-central1")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.batch_size", 250)
	v.SetDefault("embedding.task_type", "RETRIEVAL_DOCUMENT")
	v.SetDefault("embedding.query_task_type", "RETRIEVAL_DOCUMENT")
	v.SetDefault("embedding.requests_per_second", 5.0)
	v.SetDefault("embedding.burst", 5)
	v.SetDefault("embedding.timeout", "60s")

	v.SetDefault("image.dimensions", 1024)

	v.SetDefault("chunker.mode", "threshold")
	v.SetDefault("chunker.similarity_threshold", 0.8)
	v.SetDefault("chunker.percentile", 95.0)

	v.SetDefault("pipeline.input_dir", "input_datasets")
	v.SetDefault("pipeline.output_dir", "outputs")
	v.SetDefault("pipeline.json_output_dir", "json_outputs")
	v.SetDefault("pipeline.text_subdir", "text_instructions/txt_outputs")
	v.SetDefault("pipeline.image_subdir", "image_vectors")
	v.SetDefault("pipeline.embed_batch_size", 100)

	v.SetDefault("query.text_file", "user_inputs/query.txt")
	v.SetDefault("query.image_vector_file", "user_inputs/query.npy")
	v.SetDefault("query.output_file", "retrieved_data.json")
	v.SetDefault("query.top_k", 10)
	v.SetDefault("query.text_weight", 0.6)
	v.SetDefault("query.image_weight", 0.4)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if c.Image.Dimensions <= 0 {
		return fmt.Errorf("image: dimensions must be positive")
	}
	switch c.Index.Backend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("index: unknown backend %q", c.Index.Backend)
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index: collection is required")
	}
	if c.Index.InsertBatchSize <= 0 {
		return fmt.Errorf("index: insert_batch_size must be positive")
	}
	switch c.Chunker.Mode {
	case "threshold", "percentile":
	default:
		return fmt.Errorf("chunker: unknown mode %q", c.Chunker.Mode)
	}
	if c.Chunker.SimilarityThreshold < -1 || c.Chunker.SimilarityThreshold > 1 {
		return fmt.Errorf("chunker: similarity_threshold must be in [-1, 1], got %g", c.Chunker.SimilarityThreshold)
	}
	if c.Chunker.Percentile <= 0 || c.Chunker.Percentile >= 100 {
		return fmt.Errorf("chunker: percentile must be in (0, 100)")
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query: top_k must be positive")
	}
	return nil
}

// VectorWidth is the width of every combined vector stored in the index.
func (c *Config) VectorWidth() int {
	return c.Embedding.Dimensions + c.Image.Dimensions
}
