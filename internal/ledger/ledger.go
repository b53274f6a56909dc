// Package ledger records which sources of a dataset split have been fully
// processed so an interrupted batch can resume where it stopped.
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLedgerIO marks failures to read or persist completion records.
var ErrLedgerIO = errors.New("ledger I/O error")

// Key identifies one ledger: a split of a dataset.
type Key struct {
	Dataset string
	Split   string
}

func (k Key) String() string {
	return k.Dataset + "/" + k.Split
}

// Validate checks that both parts of k are usable as a single path element.
func (k Key) Validate() error {
	if !ValidName(k.Dataset) {
		return fmt.Errorf("invalid dataset name %q", k.Dataset)
	}
	if !ValidName(k.Split) {
		return fmt.Errorf("invalid split name %q", k.Split)
	}
	return nil
}

// ValidName reports whether name is a single non-empty path element.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Ledger is an append-only record of completed source names.
type Ledger interface {
	// Load returns the set of names marked done for key. A ledger that
	// does not exist yet is empty.
	Load(key Key) (map[string]struct{}, error)
	// Entries returns the distinct names marked done for key in the order
	// they were first recorded.
	Entries(key Key) ([]string, error)
	// MarkDone durably appends name. Repeated calls for the same name are
	// allowed.
	MarkDone(key Key, name string) error
	Close() error
}

// Filter drops the names in done from work, keeping the order of work.
func Filter(work []string, done map[string]struct{}) []string {
	kept := make([]string, 0, len(work))
	for _, name := range work {
		if _, ok := done[name]; ok {
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the ledger backend stored under dir. runID tags new entries
// where the backend keeps per-entry columns.
func Open(backend, dir, runID string) (Ledger, error) {
	switch backend {
	case "", BackendFile:
		return NewFileLedger(dir)
	case BackendSQLite:
		return NewSQLiteLedger(dir, runID)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", backend)
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Copy appends to dst every entry of src for key that dst does not have
// yet, returning how many were added.
func Copy(dst, src Ledger, key Key) (int, error) {
	entries, err := src.Entries(key)
	if err != nil {
		return 0, err
	}
	have, err := dst.Load(key)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, name := range entries {
		if _, ok := have[name]; ok {
			continue
		}
		if err := dst.MarkDone(key, name); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
