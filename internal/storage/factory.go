package storage

import (
	"context"
	"log/slog"
)

// Settings carries the credential sets for the remote backends plus the
// local serving configuration. A remote backend is constructed only when its
// credential set is complete; the local backend is always present.
type Settings struct {
	Root      string // working tree for local segments
	ServerURL string // externally visible base URL for local segment links

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	AWSBucket    string

	GCPProjectID       string
	GCPBucket          string
	GCPCredentialsFile string

	AzureConnection string
	AzureAccount    string
	AzureContainer  string
}

// NewBackends constructs every backend whose configuration is complete.
// The local backend is first in the returned slice. Remote backends that
// fail to construct are logged and skipped rather than aborting startup.
func NewBackends(ctx context.Context, s Settings, log *slog.Logger) []Backend {
	backends := []Backend{NewLocal(s.Root, s.ServerURL, log)}

	if s.AWSAccessKey != "" && s.AWSSecretKey != "" && s.AWSBucket != "" {
		region := s.AWSRegion
		if region == "" {
			region = "us-east-1"
		}
		backends = append(backends, NewS3(region, s.AWSAccessKey, s.AWSSecretKey, s.AWSBucket, log))
		log.Info("storage backend configured", slog.String("kind", string(KindS3)))
	}

	if s.GCPProjectID != "" && s.GCPBucket != "" {
		gcs, err := NewGCS(ctx, s.GCPProjectID, s.GCPBucket, s.GCPCredentialsFile, log)
		if err != nil {
			log.Error("gcs backend unavailable", slog.String("error", err.Error()))
		} else {
			backends = append(backends, gcs)
			log.Info("storage backend configured", slog.String("kind", string(KindGCS)))
		}
	}

	if s.AzureConnection != "" && s.AzureContainer != "" {
		az, err := NewAzure(s.AzureConnection, s.AzureAccount, s.AzureContainer, log)
		if err != nil {
			log.Error("azure backend unavailable", slog.String("error", err.Error()))
		} else {
			backends = append(backends, az)
			log.Info("storage backend configured", slog.String("kind", string(KindAzure)))
		}
	}

	return backends
}
