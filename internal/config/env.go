package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	JWTSecret      string
	Debug          bool
	RequestTimeout time.Duration

	StoreDriver  string
	DatabaseURL  string
	SslCertPath  string
	ObjectStore  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIProvider    string
	AIAPIKey      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	EmbedDim      int
	GenModel      string
	AITimeout     time.Duration

	VectorStore      string
	MilvusAddress    string
	MilvusUsername   string
	MilvusPassword   string
	MilvusDB         string
	MilvusCollection string

	RedisURL   string
	HistoryTTL time.Duration

	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	UpsertBatchSize  int
	UpsertBatchDelay time.Duration
	DeleteScanLimit  int
	IngestWorkers    int
	IngestQueueSize  int
	IngestTimeout    time.Duration

	CrawlMaxDepth    int
	CrawlMaxPages    int
	CrawlPageTimeout time.Duration
	CrawlRetries     int
	CrawlTimeout     time.Duration
	CrawlUserAgent   string
}

// LoadConfig loads the environment variables (and .env when present) and returns config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Debug:          env.getBool("DEBUG", false),
		RequestTimeout: env.getDuration("REQUEST_TIMEOUT", 60*time.Second),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		ObjectStore:  strings.ToLower(getEnv("OBJECT_STORE", "s3")),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "botwise-training"),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", "gemini")),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      env.getInt("EMBED_DIM", 768),
		GenModel:      getEnv("GEN_MODEL", "gemini-1.5-flash"),
		AITimeout:     env.getDuration("AI_TIMEOUT", 60*time.Second),

		VectorStore:      strings.ToLower(getEnv("VECTOR_STORE", "pgvector")),
		MilvusAddress:    getEnv("MILVUS_ADDRESS", ""),
		MilvusUsername:   getEnv("MILVUS_USERNAME", ""),
		MilvusPassword:   getEnv("MILVUS_PASSWORD", ""),
		MilvusDB:         getEnv("MILVUS_DB", "botwise"),
		MilvusCollection: getEnv("MILVUS_COLLECTION", "bot_vectors"),

		RedisURL:   getEnv("REDIS_URL", ""),
		HistoryTTL: env.getDuration("HISTORY_TTL", 24*time.Hour),

		ChunkSize:        env.getInt("CHUNK_SIZE", 2048),
		ChunkOverlap:     env.getInt("CHUNK_OVERLAP", 400),
		EmbedBatchSize:   env.getInt("EMBED_BATCH_SIZE", 20),
		UpsertBatchSize:  env.getInt("UPSERT_BATCH_SIZE", 100),
		UpsertBatchDelay: env.getDuration("UPSERT_BATCH_DELAY", 100*time.Millisecond),
		DeleteScanLimit:  env.getInt("DELETE_SCAN_LIMIT", 10000),
		IngestWorkers:    env.getInt("INGEST_WORKERS", 4),
		IngestQueueSize:  env.getInt("INGEST_QUEUE_SIZE", 64),
		IngestTimeout:    env.getDuration("INGEST_TIMEOUT", 15*time.Minute),

		CrawlMaxDepth:    env.getInt("CRAWL_MAX_DEPTH", 1),
		CrawlMaxPages:    env.getInt("CRAWL_MAX_PAGES", 50),
		CrawlPageTimeout: env.getDuration("CRAWL_PAGE_TIMEOUT", 15*time.Second),
		CrawlRetries:     env.getInt("CRAWL_RETRIES", 2),
		CrawlTimeout:     env.getDuration("CRAWL_TIMEOUT", 2*time.Minute),
		CrawlUserAgent:   getEnv("CRAWL_USER_AGENT", "BotwiseCrawler/1.0"),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ObjectStore {
	case "s3", "memory":
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStore)
	}

	switch c.AIProvider {
	case "gemini":
		if c.AIAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY not set")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}

	switch c.VectorStore {
	case "pgvector":
		if c.StoreDriver != "postgres" {
			return fmt.Errorf("VECTOR_STORE=pgvector requires STORE_DRIVER=postgres")
		}
	case "milvus":
		if c.MilvusAddress == "" {
			return fmt.Errorf("MILVUS_ADDRESS not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore)
	}

	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive")
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid chunking: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// envReader parses typed variables and keeps every malformed one so
// LoadConfig can report them together.
type envReader struct {
	errs []error
}

func (r *envReader) getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (r *envReader) getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a duration", key, v))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
