package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreEntry is the document layout of a single key.
type firestoreEntry struct {
	Value string `firestore:"value"`
}

// FirestoreStore is a Store that keeps one document per key in a Firestore
// collection. Keys are path-escaped to form valid document IDs.
//
// It is suitable for low volume deployments where a dedicated Redis instance
// would be overkill.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStore creates a new FirestoreStore. The client's lifecycle is
// managed by the caller.
func NewFirestoreStore(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:     client,
		collection: cfg.CollectionName,
		logger:     logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Get retrieves a single document by key.
func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	docSnap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("key '%s': %w", key, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return "", fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var entry firestoreEntry
	if err := docSnap.DataTo(&entry); err != nil {
		return "", fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}
	return entry.Value, nil
}

// Set writes the document for key. A ResourceExhausted status is reported as
// ErrQuotaExceeded.
func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	_, err := s.doc(key).Set(ctx, firestoreEntry{Value: value})
	if err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return fmt.Errorf("firestore set for %s: %w: %v", key, ErrQuotaExceeded, err)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Delete removes the document for key.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if err != nil {
		// It's often acceptable to ignore "not found" errors on delete.
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore delete failed for key %s: %w", key, err)
	}
	return nil
}

// Keys lists the document IDs of the collection, unescaped.
func (s *FirestoreStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Collection(s.collection).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list for %s: %w", s.collection, err)
		}
		key, err := url.PathUnescape(ref.ID)
		if err != nil {
			s.logger.Warn().Str("doc_id", ref.ID).Msg("Skipping document with an invalid ID.")
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Clear deletes every document of the collection. It waits for every delete
// to be acknowledged and reports the ones that failed.
func (s *FirestoreStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make(map[string]writeJob, len(keys))
	var errs []error
	for _, key := range keys {
		job, err := bw.Delete(s.doc(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("firestore clear for %s: %w", key, err))
			continue
		}
		jobs[key] = job
	}
	bw.End()

	if err := awaitWrites(jobs, errs); err != nil {
		return err
	}
	s.logger.Info().Int("deleted", len(keys)).Msg("Cleared Firestore collection.")
	return nil
}

// writeJob is the result side of a *firestore.BulkWriterJob.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// awaitWrites blocks until every job has a result and joins the failures with
// the errors already collected.
func awaitWrites(jobs map[string]writeJob, errs []error) error {
	for key, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, fmt.Errorf("firestore clear for %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	return nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(url.PathEscape(key))
}
