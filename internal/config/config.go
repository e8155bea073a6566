package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	LLMModel            string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTemperature      float32 `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	LLMTimeoutSeconds   int     `envconfig:"LLM_TIMEOUT_SECONDS" default:"120"`
	PromptPath          string  `envconfig:"PROMPT_PATH"`

	SplunkAPIURL      string `envconfig:"SPLUNK_API_URL"`
	SplunkSearchToken string `envconfig:"SPLUNK_SEARCH_TOKEN"`
	SplunkNamespace   string `envconfig:"SPLUNK_API_NAMESPACE"`
	SplunkHECURL      string `envconfig:"SPLUNK_HEC_URL"`
	SplunkHECToken    string `envconfig:"SPLUNK_HEC_TOKEN"`
	SplunkQAIndex     string `envconfig:"SPLUNK_QA_INDEX" default:"qa_bot"`
	SplunkSSLVerify   bool   `envconfig:"SPLUNK_SSL_VERIFY" default:"true"`

	ConfluenceURL      string `envconfig:"CONFLUENCE_URL"`
	ConfluenceUsername string `envconfig:"CONFLUENCE_USERNAME"`
	ConfluenceToken    string `envconfig:"CONFLUENCE_TOKEN"`
	ConfluenceSpaceKey string `envconfig:"CONFLUENCE_SPACE_KEY" default:"SOC"`

	AttackStixURL string `envconfig:"ATTACK_STIX_URL" default:"https://raw.githubusercontent.com/mitre-attack/attack-stix-data/master/enterprise-attack/enterprise-attack.json"`

	// S3-compatible fallback source for exported procedure documents
	// when Confluence is not configured.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"socqa-procedures"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"procedures/"`

	TopK            int     `envconfig:"RETRIEVAL_TOP_K" default:"3"`
	SimilarityFloor float64 `envconfig:"SIMILARITY_FLOOR" default:"0.3"`
	LookbackHours   int     `envconfig:"LOOKBACK_HOURS" default:"24"`

	LockDir             string `envconfig:"LOCK_DIR" default:"/var/run/socqa"`
	QAIntervalMinutes   int    `envconfig:"QA_INTERVAL_MINUTES" default:"60"`
	IngestIntervalHours int    `envconfig:"INGEST_INTERVAL_HOURS" default:"720"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("SOCQA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSplunk() bool {
	return c.SplunkAPIURL != "" && c.SplunkSearchToken != ""
}

func (c *Config) HasConfluence() bool {
	return c.ConfluenceURL != "" && c.ConfluenceUsername != "" && c.ConfluenceToken != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}
