// Package store persists secret records in a local SQLite file.
//
// Each operation opens its own connection, runs its statement (or one short
// transaction for batch inserts) and closes. There is no coordination between
// concurrent writers beyond SQLite's busy timeout.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/vrwmiller/stordb/pkg/audit"
)

// Constants
const (
	DefaultPath   = "stordb.sqlite3"
	FileMode      = 0600
	BusyTimeoutMS = 5000
)

// schema creates the secrets table. AUTOINCREMENT keeps ids monotonic even
// after the highest row is deleted.
const schema = `CREATE TABLE IF NOT EXISTS secrets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mac_address TEXT,
	device_name TEXT,
	owner TEXT,
	notes TEXT,
	secret_type TEXT,
	secret_value TEXT
)`

// Store is the record store backed by a single SQLite file.
type Store struct {
	path  string
	audit *audit.Logger
}

// New creates a Store for the SQLite file at path. The file is not touched
// until the first operation.
func New(path string, logger *audit.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = audit.Nop()
	}
	return &Store{path: path, audit: logger}
}

// Path returns the SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// dsn renders path as a file: URI. The driver splits a plain DSN at the
// first '?', so the path is escaped rather than concatenated.
func dsn(path string) string {
	p := filepath.ToSlash(path)
	if filepath.IsAbs(path) && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme:   "file",
		Path:     p,
		OmitHost: true,
		RawQuery: fmt.Sprintf("_pragma=busy_timeout(%d)", BusyTimeoutMS),
	}
	return u.String()
}

func (s *Store) open(ctx context.Context) (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(s.path))
	if err != nil {
		return nil, storage("open", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, storage("open", err)
	}
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// Init creates the secrets table if it does not exist. Existing rows are
// left alone.
func (s *Store) Init(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpInit, err, audit.String("path", s.path))
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		serr := storage("init", err)
		s.audit.LogError(audit.OpInit, serr, audit.String("path", s.path))
		return serr
	}

	s.audit.LogSuccess(audit.OpInit, audit.String("path", s.path))
	return nil
}

// addFields is the audit context for an add. The id is not known yet.
func addFields(rec NewRecord) []audit.Field {
	secretType := rec.SecretType
	if secretType == "" {
		secretType = DefaultSecretType
	}
	return []audit.Field{
		audit.String("device_name", rec.DeviceName),
		audit.String("owner", rec.Owner),
		audit.String("secret_type", secretType),
		audit.String("mac_address", rec.MACAddress),
		audit.String("secret_value", rec.SecretValue),
		audit.String("id", audit.AutoID),
	}
}

// Add validates and inserts a record, returning the assigned id.
// Validation happens before the store file is opened.
func (s *Store) Add(ctx context.Context, rec NewRecord) (int64, error) {
	fields := addFields(rec)

	if err := rec.validate(); err != nil {
		s.audit.LogError(audit.OpAdd, err, fields...)
		return 0, err
	}

	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpAdd, err, fields...)
		return 0, err
	}
	defer db.Close()

	id, err := insert(ctx, db, rec)
	if err != nil {
		s.audit.LogError(audit.OpAdd, err, fields...)
		return 0, err
	}

	s.audit.LogSuccess(audit.OpAdd, append(fields, audit.Int64("assigned_id", id))...)
	return id, nil
}

func insert(ctx context.Context, db bun.IDB, rec NewRecord) (int64, error) {
	row := rec.row()
	res, err := db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return 0, storage("insert", err)
	}
	if row.ID == 0 {
		if last, err := res.LastInsertId(); err == nil {
			row.ID = last
		}
	}
	return row.ID, nil
}

// Query selects a single record. MAC takes precedence over DeviceName.
type Query struct {
	MAC        string
	DeviceName string
}

// Lookup returns the first record matching q, or nil. A query with neither
// attribute set returns nil without opening the store.
func (s *Store) Lookup(ctx context.Context, q Query) (*Record, error) {
	switch {
	case q.MAC != "":
		return s.first(ctx, FieldMACAddress, q.MAC)
	case q.DeviceName != "":
		return s.first(ctx, FieldDeviceName, q.DeviceName)
	default:
		return nil, nil
	}
}

// LookupByMAC returns the first record with the given MAC address, or nil.
func (s *Store) LookupByMAC(ctx context.Context, mac string) (*Record, error) {
	return s.Lookup(ctx, Query{MAC: mac})
}

// LookupByDeviceName returns the first record with the given device name, or nil.
func (s *Store) LookupByDeviceName(ctx context.Context, name string) (*Record, error) {
	return s.Lookup(ctx, Query{DeviceName: name})
}

func (s *Store) first(ctx context.Context, field Field, value string) (*Record, error) {
	recs, err := s.find(ctx, field, value, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// LookupByField returns every record whose column field equals value.
// field must be one of Fields.
func (s *Store) LookupByField(ctx context.Context, field, value string) ([]Record, error) {
	f, err := ParseField(field)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, f, value, 0)
}

func (s *Store) find(ctx context.Context, field Field, value string, limit int) ([]Record, error) {
	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpLookup, err, audit.String(string(field), value))
		return nil, err
	}
	defer db.Close()

	var recs []Record
	q := db.NewSelect().
		Model(&recs).
		Where("? = ?", bun.Ident(string(field)), value).
		OrderExpr("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		serr := storage("lookup", err)
		s.audit.LogError(audit.OpLookup, serr, audit.String(string(field), value))
		return nil, serr
	}
	return recs, nil
}

// All returns every record ordered by id.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var recs []Record
	if err := db.NewSelect().Model(&recs).OrderExpr("id ASC").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage("select", err)
	}
	return recs, nil
}

// Update applies every field/value pair to record id in one statement.
// Updating an id that does not exist is a no-op and returns nil.
func (s *Store) Update(ctx context.Context, id int64, changes map[string]string) error {
	fields := []audit.Field{audit.Int64("id", id), audit.Updates(changes)}

	cols, err := updateColumns(changes)
	if err != nil {
		s.audit.LogError(audit.OpUpdate, err, fields...)
		return err
	}

	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpUpdate, err, fields...)
		return err
	}
	defer db.Close()

	q := db.NewUpdate().Model((*Record)(nil))
	for _, col := range cols {
		q = q.Set("? = ?", bun.Ident(string(col)), changes[string(col)])
	}
	if _, err := q.Where("id = ?", id).Exec(ctx); err != nil {
		serr := storage("update", err)
		s.audit.LogError(audit.OpUpdate, serr, fields...)
		return serr
	}

	s.audit.LogSuccess(audit.OpUpdate, fields...)
	return nil
}

// updateColumns checks every key against the allow-list, in sorted order so
// the reported field is deterministic.
func updateColumns(changes map[string]string) ([]Field, error) {
	if len(changes) == 0 {
		return nil, validation("", ErrNoChanges)
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]Field, 0, len(names))
	for _, name := range names {
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		if !f.Updatable() {
			return nil, validation(name, ErrImmutableField)
		}
		if f == FieldSecretType && changes[name] == "" {
			return nil, validation(name, ErrEmptySecretType)
		}
		cols = append(cols, f)
	}
	return cols, nil
}

// Delete removes record id. Deleting an id that does not exist is a no-op.
func (s *Store) Delete(ctx context.Context, id int64) error {
	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpDelete, err, audit.Int64("id", id))
		return err
	}
	defer db.Close()

	if _, err := db.NewDelete().Model((*Record)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		serr := storage("delete", err)
		s.audit.LogError(audit.OpDelete, serr, audit.Int64("id", id))
		return serr
	}

	s.audit.LogSuccess(audit.OpDelete, audit.Int64("id", id))
	return nil
}

// Clear deletes every record and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	db, err := s.open(ctx)
	if err != nil {
		s.audit.LogError(audit.OpClear, err, audit.String("path", s.path))
		return 0, err
	}
	defer db.Close()

	res, err := db.NewDelete().Model((*Record)(nil)).Where("1 = 1").Exec(ctx)
	if err != nil {
		serr := storage("clear", err)
		s.audit.LogError(audit.OpClear, serr, audit.String("path", s.path))
		return 0, serr
	}
	n, _ := res.RowsAffected()

	s.audit.LogSuccess(audit.OpClear, audit.String("path", s.path), audit.Int64("deleted", n))
	return n, nil
}
