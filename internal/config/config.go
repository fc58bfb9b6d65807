package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"translator/internal/logger"
	"translator/internal/poller"
)

// Provider names accepted in TRANSLATOR_PROVIDER.
const (
	ProviderAzure  = "azure"
	ProviderGoogle = "google"
)

type Config struct {
	// Provider selection
	Provider string

	// Azure Storage Configuration
	AzureStorageConnectionString string
	AzureStorageEndpoint         string
	SourceContainer              string
	TargetContainer              string

	// Azure AI Configuration
	AzureTranslatorEndpoint     string
	AzureTranslatorKey          string
	AzureTranslatorRegion       string
	AzureTextTranslatorEndpoint string
	AzureVisionEndpoint         string
	AzureVisionKey              string

	// Google Cloud Configuration
	GoogleCloudProject      string
	GoogleCloudLocation     string
	GoogleTranslateLocation string
	GoogleCredentialsJSON   string
	GoogleCredentialsFile   string
	DocumentAIProcessorID   string
	GoogleSheetURL          string

	// S3-compatible staging storage (MinIO, GCS interoperability)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// OpenAI Configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Job timing
	PollMaxWait      time.Duration
	PollInterval     time.Duration
	SASExpiryMinutes int

	// Documents translated concurrently by translate-batch
	BatchWorkers int

	// Requests per second allowed against each provider endpoint
	ProviderRateLimit float64

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		Provider:                     strings.ToLower(getEnv("TRANSLATOR_PROVIDER", ProviderAzure)),
		AzureStorageConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureStorageEndpoint:         getEnv("AZURE_STORAGE_ENDPOINT", ""),
		SourceContainer:              getEnv("SOURCE_CONTAINER", "source-documents"),
		TargetContainer:              getEnv("TARGET_CONTAINER", "translated-documents"),
		AzureTranslatorEndpoint:      getEnv("AZURE_TRANSLATOR_ENDPOINT", ""),
		AzureTranslatorKey:           getEnv("AZURE_TRANSLATOR_KEY", ""),
		AzureTranslatorRegion:        getEnv("AZURE_TRANSLATOR_REGION", ""),
		AzureTextTranslatorEndpoint:  getEnv("AZURE_TEXT_TRANSLATOR_ENDPOINT", "https://api.cognitive.microsofttranslator.com"),
		AzureVisionEndpoint:          getEnv("AZURE_VISION_ENDPOINT", ""),
		GoogleCloudProject:           getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:          getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		GoogleTranslateLocation:      getEnv("GOOGLE_TRANSLATE_LOCATION", "us-central1"),
		GoogleCredentialsJSON:        getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleCredentialsFile:        getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DocumentAIProcessorID:        getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		GoogleSheetURL:               getEnv("GOOGLE_SHEET_URL", ""),
		S3Endpoint:                   getEnv("S3_ENDPOINT", ""),
		S3AccessKey:                  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:                  getEnv("S3_SECRET_KEY", ""),
		S3Region:                     getEnv("S3_REGION", ""),
		OpenAIAPIKey:                 getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:                  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LogLevel:                     getEnv("LOG_LEVEL", "info"),
		LogFormat:                    getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:                getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                    getEnv("LOG_OUTPUT", "stderr"),
	}
	// The vision resource shares the translator key unless given its own.
	config.AzureVisionKey = getEnv("AZURE_VISION_KEY", config.AzureTranslatorKey)

	var err error
	if config.S3UseSSL, err = getEnvBool("S3_USE_SSL", true); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.PollMaxWait, err = getEnvDuration("POLL_MAX_WAIT", poller.DefaultMaxWait); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.PollInterval, err = getEnvDuration("POLL_INTERVAL", poller.DefaultInterval); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.SASExpiryMinutes, err = getEnvInt("SAS_EXPIRY_MINUTES", 60); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.BatchWorkers, err = getEnvInt("BATCH_WORKERS", 4); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.ProviderRateLimit, err = getEnvFloat("PROVIDER_RATE_LIMIT", 5); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks values that are wrong regardless of which command runs.
// Credentials are checked per command by the Require* methods.
func (c *Config) validate() error {
	if c.Provider != ProviderAzure && c.Provider != ProviderGoogle {
		return fmt.Errorf("TRANSLATOR_PROVIDER must be %q or %q, got %q", ProviderAzure, ProviderGoogle, c.Provider)
	}
	if c.PollMaxWait <= 0 {
		return fmt.Errorf("POLL_MAX_WAIT must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.SASExpiryMinutes <= 0 {
		return fmt.Errorf("SAS_EXPIRY_MINUTES must be positive")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if c.ProviderRateLimit <= 0 {
		return fmt.Errorf("PROVIDER_RATE_LIMIT must be positive")
	}
	if c.SourceContainer == "" || c.TargetContainer == "" {
		return fmt.Errorf("SOURCE_CONTAINER and TARGET_CONTAINER must not be empty")
	}
	return nil
}

// RequireStorage checks that blob storage can be signed for.
func (c *Config) RequireStorage() error {
	if c.AzureStorageConnectionString == "" {
		return fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required")
	}
	return nil
}

// RequireDocumentTranslation checks the settings the configured provider needs
// to run document translation jobs.
func (c *Config) RequireDocumentTranslation() error {
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
		}
		if c.S3Endpoint == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required for the google provider")
		}
		return nil
	default:
		if err := c.RequireStorage(); err != nil {
			return err
		}
		if c.AzureTranslatorEndpoint == "" {
			return fmt.Errorf("AZURE_TRANSLATOR_ENDPOINT is required")
		}
		if c.AzureTranslatorKey == "" {
			return fmt.Errorf("AZURE_TRANSLATOR_KEY is required")
		}
		return nil
	}
}

// RequireImageTranslation checks the OCR and text translation settings.
func (c *Config) RequireImageTranslation() error {
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
		}
		return nil
	default:
		if c.AzureVisionEndpoint == "" {
			return fmt.Errorf("AZURE_VISION_ENDPOINT is required")
		}
		if c.AzureTranslatorKey == "" {
			return fmt.Errorf("AZURE_TRANSLATOR_KEY is required")
		}
		return nil
	}
}

// GoogleClientOptions returns the credential option for Google Cloud clients.
// Inline GOOGLE_CREDENTIALS wins over a credentials file; with neither set the
// clients fall back to application default credentials.
func (c *Config) GoogleClientOptions() []option.ClientOption {
	if c.GoogleCredentialsJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.GoogleCredentialsJSON))}
	}
	if c.GoogleCredentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(c.GoogleCredentialsFile)}
	}
	return nil
}

// GoogleCredentials returns the service account key for clients that need
// the raw JSON, or nil when application default credentials should be used.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.GoogleCredentialsJSON != "" {
		return []byte(c.GoogleCredentialsJSON), nil
	}
	if c.GoogleCredentialsFile != "" {
		creds, err := os.ReadFile(c.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read GOOGLE_APPLICATION_CREDENTIALS: %w", err)
		}
		return creds, nil
	}
	return nil, nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// GetPollConfig returns the poll timing policy
func (c *Config) GetPollConfig() poller.Config {
	return poller.Config{
		MaxWait:      c.PollMaxWait,
		Interval:     c.PollInterval,
		CheckTimeout: 30 * time.Second,
	}
}

// DownloadExpiry returns how long minted download links stay valid
func (c *Config) DownloadExpiry() time.Duration {
	return time.Duration(c.SASExpiryMinutes) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
