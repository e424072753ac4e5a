package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vrwmiller/stordb/pkg/store"
)

// Masked replaces secret values in command output unless --reveal is set.
const Masked = "********"

// Status is the JSON object printed by commands that do not return records.
type Status struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

// NotFound is printed when a lookup matches nothing.
const NotFound = "Not found."

// PrintJSON writes v as JSON indented by two spaces.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintStatus writes {"status": msg}.
func PrintStatus(w io.Writer, format string, args ...any) error {
	return PrintJSON(w, Status{Status: fmt.Sprintf(format, args...)})
}

// DedupByID drops records whose id was already seen, keeping the first
// occurrence.
func DedupByID(recs []store.Record) []store.Record {
	seen := make(map[int64]bool, len(recs))
	out := make([]store.Record, 0, len(recs))
	for _, r := range recs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// Mask returns a copy of recs with non-empty secret values hidden.
func Mask(recs []store.Record) []store.Record {
	out := make([]store.Record, len(recs))
	for i, r := range recs {
		if r.SecretValue != "" {
			r.SecretValue = Masked
		}
		out[i] = r
	}
	return out
}

// PrintRecords writes recs as a JSON array, or the not-found status when
// there are none.
func PrintRecords(w io.Writer, recs []store.Record, reveal bool) error {
	if len(recs) == 0 {
		return PrintStatus(w, NotFound)
	}
	if !reveal {
		recs = Mask(recs)
	}
	return PrintJSON(w, recs)
}
