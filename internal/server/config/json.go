package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/materialkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Interval fields use timex.Duration, which accepts both "15m" and integer
// nanoseconds. Pointer fields distinguish "absent" from an explicit zero.
type JsonConfig struct {
	HealthAddrGRPC string `json:"health_addr_grpc"`
	DatabaseDSN    string `json:"database_dsn"`

	StorageBackend string          `json:"storage_backend"`
	S3RootUser     string          `json:"s3_root_user"`
	S3RootPassword string          `json:"s3_root_password"`
	S3Bucket       string          `json:"s3_bucket"`
	S3Region       string          `json:"s3_region"`
	S3BaseEndpoint string          `json:"s3_base_endpoint"`
	S3UseSSL       *bool           `json:"s3_use_ssl"`
	PresignTTL     *timex.Duration `json:"presign_ttl"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       *int   `json:"redis_db"`
	QueueName     string `json:"queue_name"`

	WorkerPoolSize int             `json:"worker_pool_size"`
	PopTimeout     *timex.Duration `json:"pop_timeout"`

	AIHost           string   `json:"ai_host"`
	AIToken          string   `json:"ai_token"`
	AIChatModel      string   `json:"ai_chat_model"`
	AIEmbeddingModel string   `json:"ai_embedding_model"`
	AnalyzerRPS      *float64 `json:"analyzer_rps"`
	AnalyzerMaxChars int      `json:"analyzer_max_chars"`

	IndexPath    *string `json:"index_path"`
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap *int    `json:"chunk_overlap"`

	OTLPEndpoint *string `json:"otlp_endpoint"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Keys absent from the file keep their current
// values. If the file cannot be read or contains invalid JSON, it panics.
func parseJson(config *Config, args []string) {
	path := jsonConfigPath(args)

	// nothing to load
	if path == "" {
		return
	}

	c, err := readJson(path)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func readJson(path string) (*JsonConfig, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HealthAddrGRPC, c.HealthAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)

	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.S3UseSSL != nil {
		config.S3UseSSL = *c.S3UseSSL
	}
	if c.PresignTTL != nil {
		config.PresignTTL = c.PresignTTL.Duration
	}

	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.QueueName, c.QueueName)

	setInt(&config.WorkerPoolSize, c.WorkerPoolSize)
	if c.PopTimeout != nil {
		config.PopTimeout = c.PopTimeout.Duration
	}

	setString(&config.AIHost, c.AIHost)
	setString(&config.AIToken, c.AIToken)
	setString(&config.AIChatModel, c.AIChatModel)
	setString(&config.AIEmbeddingModel, c.AIEmbeddingModel)
	if c.AnalyzerRPS != nil {
		config.AnalyzerRPS = *c.AnalyzerRPS
	}
	setInt(&config.AnalyzerMaxChars, c.AnalyzerMaxChars)

	if c.IndexPath != nil {
		config.IndexPath = *c.IndexPath
	}
	setInt(&config.ChunkSize, c.ChunkSize)
	if c.ChunkOverlap != nil {
		config.ChunkOverlap = *c.ChunkOverlap
	}

	if c.OTLPEndpoint != nil {
		config.OTLPEndpoint = *c.OTLPEndpoint
	}

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
