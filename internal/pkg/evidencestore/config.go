package evidencestore

import (
	"errors"
	"fmt"

	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

// Config holds evidence archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads evidence archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("EVIDENCE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("EVIDENCE_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("EVIDENCE_S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("EVIDENCE_S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("EVIDENCE_S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("EVIDENCE_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("EVIDENCE_S3_ACCESS_KEY_ID is required when evidence archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("EVIDENCE_S3_SECRET_ACCESS_KEY is required when evidence archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("EVIDENCE_S3_BUCKET_NAME is required when evidence archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if evidence archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates a standardized S3 object key for a review task
func (c *Config) GetObjectKey(taskID string, year, month int) string {
	// Format: reviews/YYYY/MM/ID.json
	return fmt.Sprintf("reviews/%04d/%02d/%s.json", year, month, taskID)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}
