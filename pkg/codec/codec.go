// Package codec converts between stored records and the JSON array format
// used for bulk import and export.
//
// Exported files contain every secret value in cleartext. They are meant as
// an intermediate artifact and should be encrypted or removed promptly.
package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/store"
)

// FileMode for exported JSON files.
const FileMode = 0600

// RequiredKeys must be present in every imported record.
var RequiredKeys = []string{"mac_address", "device_name", "owner"}

// Store is the subset of *store.Store the codec needs.
type Store interface {
	Add(ctx context.Context, rec store.NewRecord) (int64, error)
	AddBatch(ctx context.Context, recs []store.NewRecord) (*store.BatchResult, error)
	All(ctx context.Context) ([]store.Record, error)
}

// Failure describes a record that could not be imported.
type Failure struct {
	Index      int
	DeviceName string
	Owner      string
	Err        error
}

// ImportResult summarizes an import.
type ImportResult struct {
	// Total is the number of records in the input.
	Total int
	// Added is the number of records stored.
	Added int
	// Failed lists the rejected records in input order.
	Failed []Failure
}

// Codec imports and exports records.
type Codec struct {
	store Store
	audit *audit.Logger
}

// New creates a Codec over s.
func New(s Store, logger *audit.Logger) *Codec {
	if logger == nil {
		logger = audit.Nop()
	}
	return &Codec{store: s, audit: logger}
}

// Validate checks that v is an array of objects carrying every required key.
// Only key presence is checked; values may be empty. It stops at the first
// invalid record.
func Validate(v any) error {
	items, ok := v.([]any)
	if !ok {
		return &store.ValidationError{Index: -1, Msg: "codec: import data must be a JSON array of records"}
	}

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return &store.ValidationError{Index: i, Msg: fmt.Sprintf("record %d is not an object", i)}
		}

		var missing []string
		for _, key := range RequiredKeys {
			if _, ok := obj[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return &store.ValidationError{
				Field:   missing[0],
				Index:   i,
				Missing: missing,
				Msg:     fmt.Sprintf("record %d missing required fields: %s", i, strings.Join(missing, ", ")),
			}
		}
	}
	return nil
}

// Decode parses and validates data into records ready for the store.
func Decode(data []byte) ([]store.NewRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &store.ValidationError{Index: -1, Msg: fmt.Sprintf("codec: invalid JSON: %v", err), Err: err}
	}
	if dec.More() {
		return nil, &store.ValidationError{Index: -1, Msg: "codec: invalid JSON: trailing data after array"}
	}
	if err := Validate(v); err != nil {
		return nil, err
	}

	items := v.([]any)
	recs := make([]store.NewRecord, len(items))
	for i, item := range items {
		obj := item.(map[string]any)
		recs[i] = store.NewRecord{
			MACAddress:  stringify(obj["mac_address"]),
			DeviceName:  stringify(obj["device_name"]),
			Owner:       stringify(obj["owner"]),
			Notes:       stringify(obj["notes"]),
			SecretType:  stringify(obj["secret_type"]),
			SecretValue: stringify(obj["secret_value"]),
		}
	}
	return recs, nil
}

// stringify renders a decoded JSON value as stored text. Absent and null
// values become empty strings.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to read %s: %w", path, err)
	}
	return data, nil
}

// ImportFromFile adds every record in the JSON file at path, one store call
// per record. Rejected records are reported in the result and skipped.
// Unreadable, malformed or invalid input aborts before anything is added.
func (c *Codec) ImportFromFile(ctx context.Context, path string) (*ImportResult, error) {
	c.audit.LogAction(audit.OpImport, audit.String("path", path))

	data, err := readFile(path)
	if err != nil {
		c.audit.LogError(audit.OpImport, err, audit.String("path", path))
		return &ImportResult{}, err
	}
	return c.importData(ctx, audit.OpImport, path, data)
}

// Import is ImportFromFile over an in-memory document.
func (c *Codec) Import(ctx context.Context, data []byte) (*ImportResult, error) {
	return c.importData(ctx, audit.OpImport, "", data)
}

func (c *Codec) importData(ctx context.Context, op, path string, data []byte) (*ImportResult, error) {
	recs, err := Decode(data)
	if err != nil {
		c.audit.LogError(op, err, audit.String("path", path))
		return &ImportResult{}, err
	}

	result := &ImportResult{Total: len(recs)}
	for i, rec := range recs {
		if _, err := c.store.Add(ctx, rec); err != nil {
			result.Failed = append(result.Failed, c.failure(i, rec, err))
			continue
		}
		result.Added++
	}

	c.audit.LogSuccess(op,
		audit.String("path", path),
		audit.Int("imported", result.Added),
		audit.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// ImportOverwriteFromFile loads the JSON file at path in a single
// transaction. Callers clear the store first. Per-record failures are
// reported without aborting the batch.
func (c *Codec) ImportOverwriteFromFile(ctx context.Context, path string) (*ImportResult, error) {
	c.audit.LogAction(audit.OpImportDB, audit.String("path", path))

	data, err := readFile(path)
	if err != nil {
		c.audit.LogError(audit.OpImportDB, err, audit.String("path", path))
		return &ImportResult{}, err
	}
	return c.ImportOverwrite(ctx, path, data)
}

// ImportOverwrite is ImportOverwriteFromFile over an in-memory document.
// source only labels audit entries.
func (c *Codec) ImportOverwrite(ctx context.Context, source string, data []byte) (*ImportResult, error) {
	recs, err := Decode(data)
	if err != nil {
		c.audit.LogError(audit.OpImportDB, err, audit.String("path", source))
		return &ImportResult{}, err
	}

	batch, err := c.store.AddBatch(ctx, recs)
	if err != nil {
		c.audit.LogError(audit.OpImportDB, err, audit.String("path", source))
		return &ImportResult{Total: len(recs)}, err
	}

	result := &ImportResult{Total: len(recs), Added: batch.Added()}
	for _, f := range batch.Failed {
		result.Failed = append(result.Failed, c.failure(f.Index, f.Record, f.Err))
	}

	c.audit.LogSuccess(audit.OpImportDB,
		audit.String("path", source),
		audit.Int("imported", result.Added),
		audit.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (c *Codec) failure(i int, rec store.NewRecord, err error) Failure {
	c.audit.LogError(audit.OpImportItem, err,
		audit.Int("index", i),
		audit.String("device_name", rec.DeviceName),
		audit.String("owner", rec.Owner),
		audit.String("mac_address", rec.MACAddress),
		audit.String("secret_value", rec.SecretValue),
	)
	return Failure{Index: i, DeviceName: rec.DeviceName, Owner: rec.Owner, Err: err}
}

// Export serializes every record as an indented JSON array, secret values
// included.
func (c *Codec) Export(ctx context.Context) ([]byte, int, error) {
	recs, err := c.store.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	if recs == nil {
		recs = []store.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return nil, 0, fmt.Errorf("codec: failed to encode records: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), len(recs), nil
}

// ExportAllToFile writes every record to path in cleartext.
func (c *Codec) ExportAllToFile(ctx context.Context, path string) (int, error) {
	data, n, err := c.Export(ctx)
	if err != nil {
		c.audit.LogError(audit.OpExport, err, audit.String("path", path))
		return 0, err
	}

	if err := writeFile(path, data); err != nil {
		c.audit.LogError(audit.OpExport, err, audit.String("path", path))
		return 0, err
	}

	c.audit.LogSuccess(audit.OpExport, audit.String("path", path), audit.Int("records", n))
	return n, nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return fmt.Errorf("codec: failed to create %s: %w", path, err)
	}
	// OpenFile leaves the mode of an existing file alone.
	if err := f.Chmod(FileMode); err != nil {
		_ = f.Close()
		return fmt.Errorf("codec: failed to chmod %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("codec: failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("codec: failed to close %s: %w", path, err)
	}
	return nil
}
