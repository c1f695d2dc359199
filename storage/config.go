package storage

import (
	"fmt"
	"time"

	"github.com/sean-she/photoflow-storage/util"
	"github.com/sean-she/photoflow-storage/validation"
)

// Names of the built-in providers, as written in configuration files.
const (
	ProviderMemory = "memory"
	ProviderS3     = "s3"
	ProviderLocal  = "local"
)

// Fallbacks applied by ApplyDefaults.
const (
	DefaultProvider      = ProviderLocal
	DefaultBasePath      = "/var/lib/photoflow/storage"
	DefaultRegion        = "us-east-1"
	DefaultMaxFileSize   = int64(100 * 1024 * 1024)
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
)

// supportedProviders lists every provider name Validate accepts.
var supportedProviders = []string{ProviderS3, ProviderLocal, ProviderMemory}

// Config selects and tunes a storage backend. One Config drives every
// provider; backends ignore the fields that do not apply to them.
type Config struct {
	// Provider picks the backend: "s3", "local" or "memory".
	Provider string `mapstructure:"provider" json:"provider"`

	// BasePath roots the on-disk tree for the local provider.
	BasePath string `mapstructure:"base_path" json:"base_path"`

	// S3 settings. Endpoint points at an S3-compatible service such as
	// MinIO; leave it empty for AWS proper.
	Bucket   string `mapstructure:"bucket" json:"bucket"`
	Region   string `mapstructure:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// AccessKey and SecretKey are static credentials. When empty, the
	// provider falls back to the ambient AWS credential chain.
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`

	// ForcePathStyle addresses the bucket in the URL path rather than
	// the host. Most S3-compatible services need it.
	ForcePathStyle bool `mapstructure:"force_path_style" json:"force_path_style"`

	// PublicBaseURL overrides the URL base used by PublicURL, for
	// buckets fronted by a CDN or reverse proxy.
	PublicBaseURL string `mapstructure:"public_base_url" json:"public_base_url"`

	// MaxFileSize caps uploads, in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size" json:"max_file_size"`

	// PartSize sets the multipart transfer part size as a human-readable
	// size ("16MB"). Empty or below the provider minimum means the
	// minimum is used.
	PartSize string `mapstructure:"part_size" json:"part_size"`

	// BatchConcurrency bounds parallel object operations in batch
	// uploads and deletes.
	BatchConcurrency int `mapstructure:"batch_concurrency" json:"batch_concurrency"`

	// RetryAttempts and RetryBackoff shape the retry loop around
	// transient failures: total attempts including the first, and the
	// delay before the first retry, doubling after each.
	RetryAttempts int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`
}

// ApplyDefaults fills zero fields so a mostly-empty Config still yields
// a working local provider.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = DefaultBatchConcurrency
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

// PartSizeBytes resolves PartSize against the provider minimum. The S3
// transfer manager rejects parts under MultipartThreshold, so smaller
// configured values are raised rather than failed.
func (c *Config) PartSizeBytes() int64 {
	size := util.ParseSize(c.PartSize, MultipartThreshold)
	if size < MultipartThreshold {
		return MultipartThreshold
	}
	return size
}

// Validate checks that the selected provider has what it needs.
func (c *Config) Validate() error {
	v := validation.New()
	v.Required("provider", c.Provider).
		OneOf("provider", c.Provider, supportedProviders)
	switch c.Provider {
	case ProviderLocal:
		v.Required("base_path", c.BasePath)
	case ProviderS3:
		v.Required("bucket", c.Bucket)
		v.Required("region", c.Region)
	}
	if appErr := v.Validate(); appErr != nil {
		return fmt.Errorf("storage: %w", appErr)
	}
	return nil
}
