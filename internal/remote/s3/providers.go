// Package s3 implements the remote backend on S3-compatible object storage
// (AWS S3, MinIO, Cloudflare R2). Each record is one snappy-compressed JSON object.
package s3

import (
	"fmt"
	"strings"
)

// Provider selects endpoint conventions.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderMinIO Provider = "minio"
	ProviderR2    Provider = "r2"
)

// Config configures the S3 backend.
type Config struct {
	Provider  Provider `yaml:"provider"`
	Bucket    string   `yaml:"bucket"`
	Region    string   `yaml:"region"`
	Endpoint  string   `yaml:"endpoint"`   // MinIO host or custom AWS endpoint
	AccountID string   `yaml:"account_id"` // R2 only
	UseSSL    bool     `yaml:"use_ssl"`    // MinIO only
	// Prefer IAM roles or AWS_* environment variables over static keys.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

// endpointOptions is what the aws-sdk client needs from a Config.
type endpointOptions struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// resolve applies provider conventions:
// AWS uses virtual-host style and the SDK's regional endpoints,
// MinIO requires path-style URLs and ignores regions,
// R2 uses account-specific endpoints with region "auto".
func (c Config) resolve() (endpointOptions, error) {
	if c.Bucket == "" {
		return endpointOptions{}, fmt.Errorf("bucket is required")
	}

	switch c.Provider {
	case ProviderAWS, "":
		region := c.Region
		if region == "" {
			region = "us-east-1"
		}
		return endpointOptions{Region: region, Endpoint: c.Endpoint}, nil

	case ProviderMinIO:
		endpoint, err := normalizeEndpoint(c.Endpoint, c.UseSSL)
		if err != nil {
			return endpointOptions{}, err
		}
		return endpointOptions{Region: "us-east-1", Endpoint: endpoint, UsePathStyle: true}, nil

	case ProviderR2:
		if !IsValidR2AccountID(c.AccountID) {
			return endpointOptions{}, fmt.Errorf("invalid R2 account id %q", c.AccountID)
		}
		return endpointOptions{Region: "auto", Endpoint: "https://" + R2EndpointForAccount(c.AccountID)}, nil
	}
	return endpointOptions{}, fmt.Errorf("unknown S3 provider %q", c.Provider)
}

// normalizeEndpoint adds a scheme when missing and trims trailing slashes.
func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

// R2EndpointForAccount returns the R2 endpoint host for accountID.
func R2EndpointForAccount(accountID string) string {
	return accountID + ".r2.cloudflarestorage.com"
}

// IsValidR2AccountID reports whether accountID is 32 hex characters.
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
