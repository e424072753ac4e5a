package store

import (
	"context"

	"github.com/vrwmiller/stordb/pkg/audit"
)

// BatchFailure describes one record rejected during AddBatch.
type BatchFailure struct {
	Index  int
	Record NewRecord
	Err    error
}

// BatchResult summarizes an AddBatch call.
type BatchResult struct {
	IDs    []int64
	Failed []BatchFailure
}

// Added returns the number of committed records.
func (r *BatchResult) Added() int {
	return len(r.IDs)
}

// AddBatch inserts recs inside one transaction. A record that fails
// validation or insertion is reported in the result and skipped; the rest
// are committed together at the end. Only a failure of the transaction
// itself is returned as an error, in which case nothing was added.
func (s *Store) AddBatch(ctx context.Context, recs []NewRecord) (*BatchResult, error) {
	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpImportDB, err, audit.String("path", s.path))
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		serr := storage("begin", err)
		s.audit.LogError(audit.OpImportDB, serr, audit.String("path", s.path))
		return nil, serr
	}
	defer tx.Rollback()

	result := &BatchResult{}
	var pending [][]audit.Field
	for i, rec := range recs {
		fields := addFields(rec)

		if err := rec.validate(); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Index: i, Record: rec, Err: err})
			s.audit.LogError(audit.OpAdd, err, append(fields, audit.Int("index", i))...)
			continue
		}

		id, err := insert(ctx, tx, rec)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Index: i, Record: rec, Err: err})
			s.audit.LogError(audit.OpAdd, err, append(fields, audit.Int("index", i))...)
			continue
		}

		result.IDs = append(result.IDs, id)
		pending = append(pending, append(fields, audit.Int64("assigned_id", id)))
	}

	if err := tx.Commit(); err != nil {
		serr := storage("commit", err)
		s.audit.LogError(audit.OpImportDB, serr, audit.String("path", s.path), audit.Int("records", len(recs)))
		return nil, serr
	}

	// Adds are only logged as successful once they are durable.
	for _, fields := range pending {
		s.audit.LogSuccess(audit.OpAdd, fields...)
	}
	return result, nil
}
