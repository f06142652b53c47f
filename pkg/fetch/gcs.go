package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// DefaultMaxObjectBytes caps the size of an icon read from a bucket.
const DefaultMaxObjectBytes = 1 << 20

// GCSFetcherConfig holds configuration for the GCSFetcher.
type GCSFetcherConfig struct {
	BucketName   string
	ObjectPrefix string
	// MaxObjectBytes defaults to DefaultMaxObjectBytes when zero.
	MaxObjectBytes int64
}

// GCSFetcher reads <ObjectPrefix>/<name>.svg from a Cloud Storage bucket.
type GCSFetcher struct {
	client GCSClient
	config GCSFetcherConfig
	logger zerolog.Logger
}

// NewGCSFetcher creates a fetcher configured for Google Cloud Storage.
func NewGCSFetcher(gcsClient GCSClient, config GCSFetcherConfig, logger zerolog.Logger) (*GCSFetcher, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if config.MaxObjectBytes <= 0 {
		config.MaxObjectBytes = DefaultMaxObjectBytes
	}
	return &GCSFetcher{
		client: gcsClient,
		config: config,
		logger: logger.With().Str("component", "GCSFetcher").Str("bucket", config.BucketName).Logger(),
	}, nil
}

// Fetch satisfies the Fetcher contract. Missing objects and read failures are
// reported as ErrTransportFailure.
func (f *GCSFetcher) Fetch(ctx context.Context, iconName string) (*Response, error) {
	objectName := f.ObjectName(iconName)
	reader, err := f.client.Bucket(f.config.BucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: object %s does not exist", ErrTransportFailure, objectName)
		}
		return nil, fmt.Errorf("%w: opening %s: %w", ErrTransportFailure, objectName, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(io.LimitReader(reader, f.config.MaxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrTransportFailure, objectName, err)
	}
	if int64(len(data)) > f.config.MaxObjectBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTransportFailure, objectName, f.config.MaxObjectBytes)
	}

	f.logger.Debug().Str("object_name", objectName).Int("bytes", len(data)).Msg("Fetched icon from GCS.")
	return &Response{Data: string(data)}, nil
}

// ObjectName returns the object path of an icon.
func (f *GCSFetcher) ObjectName(iconName string) string {
	return path.Join(f.config.ObjectPrefix, iconName+".svg")
}
