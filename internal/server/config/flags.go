package config

import (
	"flag"
	"strings"
)

// parseFlags populates server Config fields from command-line flags.
//
// Short forms cover the settings most often overridden:
//
//	-a string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r string   Redis address
//	-w int      worker pool size
//	-l string   log level
//
// The remaining settings use long names only, see the registrations below.
// Arguments are filtered with FilterArgs first so unknown flags from other
// components are ignored.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HealthAddrGRPC, "a", config.HealthAddrGRPC, "address and port of the health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "object storage backend (s3|minio)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.S3UseSSL, "s3-ssl", config.S3UseSSL, "use TLS for the minio backend")
	fs.DurationVar(&config.PresignTTL, "presign-ttl", config.PresignTTL, "lifetime of presigned upload URLs")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "redis-password", config.RedisPassword, "redis password")
	fs.IntVar(&config.RedisDB, "redis-db", config.RedisDB, "redis database")
	fs.StringVar(&config.QueueName, "queue", config.QueueName, "job queue name")

	fs.IntVar(&config.WorkerPoolSize, "w", config.WorkerPoolSize, "worker pool size")
	fs.DurationVar(&config.PopTimeout, "pop-timeout", config.PopTimeout, "blocking pop timeout")

	fs.StringVar(&config.AIHost, "ai-host", config.AIHost, "OpenAI-compatible base URL")
	fs.StringVar(&config.AIToken, "ai-token", config.AIToken, "AI API token")
	fs.StringVar(&config.AIChatModel, "ai-chat-model", config.AIChatModel, "chat model used for analysis")
	fs.StringVar(&config.AIEmbeddingModel, "ai-embedding-model", config.AIEmbeddingModel, "embedding model used for indexing")
	fs.Float64Var(&config.AnalyzerRPS, "analyzer-rps", config.AnalyzerRPS, "analysis requests per second")
	fs.IntVar(&config.AnalyzerMaxChars, "analyzer-max-chars", config.AnalyzerMaxChars, "characters of text sent for analysis")

	fs.StringVar(&config.IndexPath, "index", config.IndexPath, "knowledge index directory, empty for in-memory")
	fs.IntVar(&config.ChunkSize, "chunk-size", config.ChunkSize, "index chunk size in runes")
	fs.IntVar(&config.ChunkOverlap, "chunk-overlap", config.ChunkOverlap, "index chunk overlap in runes")

	fs.StringVar(&config.OTLPEndpoint, "otlp", config.OTLPEndpoint, "OTLP/HTTP trace endpoint, empty disables tracing")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (json|text)")

	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "graceful shutdown timeout")

	var allowed []string
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})

	if err := fs.Parse(FilterArgs(args, allowed)); err != nil {
		panic(err)
	}

	config.StorageBackend = strings.ToLower(config.StorageBackend)
}
