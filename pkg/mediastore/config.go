// Package mediastore wraps the S3 bucket holding source uploads and
// transcoded output: it issues time-limited presigned upload URLs and
// verifies that a referenced source object exists before a job is
// submitted for it.
package mediastore

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config configures the media store.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// For S3-compatible stores (MinIO, Wasabi), set Endpoint and typically
// ForcePathStyle.
type Config struct {
	// Bucket is the media bucket name (required).
	Bucket string

	// Region is the AWS region. For AWS S3: defaults to us-east-1 when
	// not resolvable from environment or profile. When Endpoint is set,
	// no default is applied.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	Endpoint string

	// Profile is the AWS profile name from shared config. Leave empty to
	// use the default profile or environment credentials.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey
	// must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID
	// is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs. Required for most
	// S3-compatible stores.
	ForcePathStyle bool

	// UploadExpiry is how long issued upload URLs stay valid.
	// Zero uses DefaultUploadExpiry.
	UploadExpiry time.Duration

	// AllowedKeyPatterns restricts which object keys clients may request
	// upload URLs for, as doublestar glob patterns (e.g. "uploads/**").
	// Empty means any key is allowed.
	AllowedKeyPatterns []string
}

// DefaultUploadExpiry matches the upstream 10-minute presign window.
const DefaultUploadExpiry = 10 * time.Minute

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	for _, pattern := range c.AllowedKeyPatterns {
		if !doublestar.ValidatePattern(pattern) {
			return &ConfigError{
				Field:   "AllowedKeyPatterns",
				Message: "invalid glob pattern: " + pattern,
			}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "mediastore config: " + e.Field + ": " + e.Message
}
