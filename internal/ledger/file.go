package ledger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileLedger keeps one plain-text file per key with one name per line.
type FileLedger struct {
	dir string
}

func NewFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create ledger directory: %v", ErrLedgerIO, err)
	}
	return &FileLedger{dir: dir}, nil
}

// Path returns the file holding the ledger for key:
// <dir>/<dataset>/<split>.txt.
func (l *FileLedger) Path(key Key) string {
	return filepath.Join(l.dir, key.Dataset, key.Split+".txt")
}

func (l *FileLedger) Load(key Key) (map[string]struct{}, error) {
	names, err := l.read(key)
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

func (l *FileLedger) Entries(key Key) ([]string, error) {
	names, err := l.read(key)
	if err != nil {
		return nil, err
	}
	return dedupe(names), nil
}

// read returns every complete line verbatim, minus a trailing \r. A trailing
// line without a newline is a torn append and is ignored.
func (l *FileLedger) read(key Key) ([]string, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger %s: %v", ErrLedgerIO, key, err)
	}

	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	} else {
		return nil, nil
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

func (l *FileLedger) MarkDone(key Key, name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("invalid source name %q", name)
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.Path(key)), 0755); err != nil {
		return fmt.Errorf("%w: failed to create ledger directory %s: %v", ErrLedgerIO, key, err)
	}

	f, err := os.OpenFile(l.Path(key), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to open ledger %s: %v", ErrLedgerIO, key, err)
	}

	// Terminate a torn previous append so it cannot swallow this name.
	record := name + "\n"
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			record = "\n" + record
		}
	}

	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to append to ledger %s: %v", ErrLedgerIO, key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to sync ledger %s: %v", ErrLedgerIO, key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close ledger %s: %v", ErrLedgerIO, key, err)
	}
	return nil
}

func (l *FileLedger) Close() error { return nil }
