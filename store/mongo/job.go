package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/backoff"
	"github.com/camber-run/camber/id"
	"github.com/camber-run/camber/job"
)

// runOrder is the tie-break for which job runs first: earliest
// NextRunAt, then highest Priority.
var runOrder = bson.D{
	{Key: "next_run_at", Value: 1},
	{Key: "priority", Value: -1},
}

// eligibilityFilter matches documents claimable for name: not
// disabled, and either unclaimed with NextRunAt inside the scan
// horizon, or carrying a claim stale enough to steal.
func eligibilityFilter(name string, scanHorizon, lockDeadline time.Time) bson.M {
	return bson.M{
		"name":     name,
		"disabled": bson.M{"$ne": true},
		"$or": bson.A{
			bson.M{
				"locked_at":   nil,
				"next_run_at": bson.M{"$lte": scanHorizon},
			},
			bson.M{
				"locked_at": bson.M{"$lte": lockDeadline},
			},
		},
	}
}

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if IsConflict(err) {
			return camber.ErrJobAlreadyExists
		}
		return fmt.Errorf("camber/mongo: create job: %w", err)
	}
	return nil
}

// UpsertSingle creates or updates the at-most-one record for a
// single-type job name. The compound {name, type} predicate plus the
// insert-only side of the upsert guarantee uniqueness even under
// concurrent creators racing on the partial unique index.
func (s *Store) UpsertSingle(ctx context.Context, j *job.Job) (*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(ctx context.Context) (*job.Job, error) {
		t := stamp(time.Now())
		col := s.mdb.Collection(colJobs)

		filter := bson.M{
			"name": j.Name,
			"type": string(job.TypeSingle),
		}
		update := bson.M{
			"$setOnInsert": bson.M{
				"_id":         j.ID.String(),
				"next_run_at": j.NextRunAt,
				"locked_at":   nil,
				"fail_count":  0,
				"created_at":  t,
			},
			"$set": bson.M{
				"data":            j.Data,
				"priority":        j.Priority,
				"disabled":        j.Disabled,
				"repeat_interval": j.RepeatInterval,
				"updated_at":      t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After)

		var m jobModel
		if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
			return nil, fmt.Errorf("camber/mongo: upsert single %q: %w", j.Name, err)
		}
		return fromJobModel(&m)
	})
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	col := s.mdb.Collection(colJobs)
	var m jobModel
	err := col.FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, camber.ErrJobNotFound
		}
		return nil, fmt.Errorf("camber/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// Claim atomically locks the given job where it is unclaimed and not
// disabled. Returns nil when another worker won or the job was
// disabled in the meantime.
func (s *Store) Claim(ctx context.Context, j *job.Job, now time.Time) (*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(ctx context.Context) (*job.Job, error) {
		t := stamp(now)
		col := s.mdb.Collection(colJobs)

		filter := bson.M{
			"_id":       j.ID.String(),
			"name":      j.Name,
			"locked_at": nil,
			"disabled":  bson.M{"$ne": true},
		}
		update := bson.M{"$set": bson.M{
			"locked_at":  t,
			"updated_at": t,
		}}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var m jobModel
		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("camber/mongo: claim job: %w", err)
		}
		return fromJobModel(&m)
	})
}

// ClaimNext locks and returns the most urgent eligible job of the
// given name, or nil when nothing is eligible.
func (s *Store) ClaimNext(ctx context.Context, name string, scanHorizon, lockDeadline, now time.Time) (*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(ctx context.Context) (*job.Job, error) {
		t := stamp(now)
		col := s.mdb.Collection(colJobs)

		update := bson.M{"$set": bson.M{
			"locked_at":  t,
			"updated_at": t,
		}}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(runOrder)

		var m jobModel
		err := col.FindOneAndUpdate(ctx, eligibilityFilter(name, scanHorizon, lockDeadline), update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("camber/mongo: claim next %q: %w", name, err)
		}
		return fromJobModel(&m)
	})
}

// BatchClaim locks up to batchSize eligible jobs of the given name in
// one multi-document update. A single-document conditional update is
// the contention unit; batching n documents converts n independent
// contention events into one. Concurrent stealers between selection
// and update are tolerated by the update predicate and shrink the
// result.
func (s *Store) BatchClaim(ctx context.Context, name string, batchSize int, scanHorizon, lockDeadline, now time.Time) ([]*job.Job, error) {
	return backoff.Retry(ctx, s.retryer, func(ctx context.Context) ([]*job.Job, error) {
		t := stamp(now)
		col := s.mdb.Collection(colJobs)

		// Phase 1: select candidate ids in run order.
		findOpts := options.Find().
			SetSort(runOrder).
			SetLimit(int64(batchSize)).
			SetProjection(bson.M{"_id": 1})

		cursor, err := col.Find(ctx, eligibilityFilter(name, scanHorizon, lockDeadline), findOpts)
		if err != nil {
			return nil, fmt.Errorf("camber/mongo: batch claim select %q: %w", name, err)
		}

		var idDocs []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &idDocs); err != nil {
			return nil, fmt.Errorf("camber/mongo: batch claim select decode: %w", err)
		}
		if len(idDocs) == 0 {
			return nil, nil
		}

		ids := make([]string, len(idDocs))
		for i, d := range idDocs {
			ids[i] = d.ID
		}

		// Phase 2: stamp exactly those ids that are still claimable.
		stampFilter := bson.M{
			"_id": bson.M{"$in": ids},
			"$or": bson.A{
				bson.M{"locked_at": nil},
				bson.M{"locked_at": bson.M{"$lte": lockDeadline}},
			},
		}
		update := bson.M{"$set": bson.M{
			"locked_at":  t,
			"updated_at": t,
		}}
		if _, err := col.UpdateMany(ctx, stampFilter, update); err != nil {
			return nil, fmt.Errorf("camber/mongo: batch claim update %q: %w", name, err)
		}

		// Phase 3: re-read only the documents carrying our stamp,
		// back in run order.
		readFilter := bson.M{
			"_id":       bson.M{"$in": ids},
			"locked_at": t,
		}
		cursor, err = col.Find(ctx, readFilter, options.Find().SetSort(runOrder))
		if err != nil {
			return nil, fmt.Errorf("camber/mongo: batch claim read %q: %w", name, err)
		}

		var models []jobModel
		if err := cursor.All(ctx, &models); err != nil {
			return nil, fmt.Errorf("camber/mongo: batch claim read decode: %w", err)
		}

		claimed := make([]*job.Job, 0, len(models))
		for i := range models {
			converted, convErr := fromJobModel(&models[i])
			if convErr != nil {
				return nil, fmt.Errorf("camber/mongo: batch claim convert: %w", convErr)
			}
			claimed = append(claimed, converted)
		}
		return claimed, nil
	})
}

// Release clears the lock where the job still has a NextRunAt. The
// predicate prevents un-finishing a job whose NextRunAt was
// intentionally cleared by completion.
func (s *Store) Release(ctx context.Context, j *job.Job) error {
	t := stamp(time.Now())
	col := s.mdb.Collection(colJobs)

	filter := bson.M{
		"_id":         j.ID.String(),
		"next_run_at": bson.M{"$ne": nil},
	}
	update := bson.M{
		"$set": bson.M{"locked_at": nil, "updated_at": t},
	}
	if _, err := col.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("camber/mongo: release job: %w", err)
	}
	return nil
}

// ReleaseMany clears the lock on every given id that still has a
// NextRunAt.
func (s *Store) ReleaseMany(ctx context.Context, ids []id.JobID) error {
	if len(ids) == 0 {
		return nil
	}

	t := stamp(time.Now())
	col := s.mdb.Collection(colJobs)

	raw := make([]string, len(ids))
	for i, jobID := range ids {
		raw[i] = jobID.String()
	}

	filter := bson.M{
		"_id":         bson.M{"$in": raw},
		"next_run_at": bson.M{"$ne": nil},
	}
	update := bson.M{
		"$set": bson.M{"locked_at": nil, "updated_at": t},
	}
	if _, err := col.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("camber/mongo: release %d jobs: %w", len(ids), err)
	}
	return nil
}

// SaveState patches the mutable execution fields of an existing record.
func (s *Store) SaveState(ctx context.Context, j *job.Job) error {
	t := stamp(time.Now())
	col := s.mdb.Collection(colJobs)

	filter := bson.M{
		"_id":  j.ID.String(),
		"name": j.Name,
	}
	update := bson.M{"$set": bson.M{
		"locked_at":        j.LockedAt,
		"next_run_at":      j.NextRunAt,
		"last_run_at":      j.LastRunAt,
		"last_finished_at": j.LastFinishedAt,
		"failed_at":        j.FailedAt,
		"fail_count":       j.FailCount,
		"fail_reason":      j.FailReason,
		"progress":         j.Progress,
		"updated_at":       t,
	}}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("camber/mongo: save job state: %w", err)
	}
	if res.MatchedCount == 0 {
		return camber.ErrJobNotFound
	}
	return nil
}

// TouchJob refreshes LockedAt for a job that still holds a claim.
func (s *Store) TouchJob(ctx context.Context, jobID id.JobID, now time.Time) error {
	t := stamp(now)
	col := s.mdb.Collection(colJobs)

	filter := bson.M{
		"_id":       jobID.String(),
		"locked_at": bson.M{"$ne": nil},
	}
	update := bson.M{"$set": bson.M{
		"locked_at":  t,
		"updated_at": t,
	}}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("camber/mongo: touch job: %w", err)
	}
	if res.MatchedCount == 0 {
		return camber.ErrLockMissing
	}
	return nil
}

// QueueSize returns the number of jobs due before now. Advisory.
func (s *Store) QueueSize(ctx context.Context, now time.Time) (int64, error) {
	col := s.mdb.Collection(colJobs)
	count, err := col.CountDocuments(ctx, bson.M{
		"next_run_at": bson.M{"$lt": stamp(now)},
	})
	if err != nil {
		return 0, fmt.Errorf("camber/mongo: queue size: %w", err)
	}
	return count, nil
}
