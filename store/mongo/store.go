package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/camber-run/camber/backoff"
	"github.com/camber-run/camber/job"
)

// colJobs is the shared collection worker processes rendezvous on.
const colJobs = "camber_jobs"

// Ensure Store implements the repository contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a MongoDB implementation of job.Store using the MongoDB
// driver through a grove DB handle. The caller owns the *grove.DB
// lifecycle; Store never closes it.
type Store struct {
	db      *grove.DB
	mdb     *mongodriver.MongoDB
	retryer *backoff.Retryer
	logger  *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRetryer replaces the conflict retryer wrapped around claim and
// upsert operations.
func WithRetryer(r *backoff.Retryer) Option {
	return func(s *Store) {
		s.retryer = r
	}
}

// New creates a new MongoDB store. The caller owns the db lifecycle --
// the Store will not close it on Close().
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		mdb:     mongodriver.Unwrap(db),
		retryer: backoff.NewRetryer(backoff.WithClassifier(IsConflict)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *grove.DB for advanced usage.
func (s *Store) DB() *grove.DB {
	return s.db
}

// Migrate creates the indexes required at correctness-scale:
// the discovery compound index, the partial lock-cleanup index, the
// status-query index, and the single-type uniqueness index.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongod.IndexModel{
		// Discovery index: name + disabled + next_run_at + locked_at + priority.
		{Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "disabled", Value: 1},
			{Key: "next_run_at", Value: 1},
			{Key: "locked_at", Value: 1},
			{Key: "priority", Value: -1},
		}},
		// Lock cleanup index, partial on claimed documents.
		{
			Keys: bson.D{
				{Key: "locked_at", Value: 1},
				{Key: "name", Value: 1},
			},
			Options: options.Index().SetPartialFilterExpression(
				bson.M{"locked_at": bson.M{"$type": "date"}},
			),
		},
		// Status queries.
		{Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "last_finished_at", Value: -1},
		}},
		// At most one record per single-type name.
		{
			Keys: bson.D{{Key: "name", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": string(job.TypeSingle)}),
		},
	}

	_, err := s.mdb.Collection(colJobs).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("camber/mongo: migrate %s indexes: %w", colJobs, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op because the caller owns the *grove.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// IsConflict classifies MongoDB conflict-class errors: duplicate-key
// violations (code 11000) and optimistic write conflicts (code 112 /
// codeName "WriteConflict"). These are the errors worth retrying.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if mongod.IsDuplicateKeyError(err) {
		return true
	}
	var se mongod.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(11000) || se.HasErrorCode(112)) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "WriteConflict") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "E11000")
}

// stamp truncates t to the millisecond resolution BSON datetimes
// carry, so a written value can be matched back exactly.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
