package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// FileBackup appends readings as JSON lines to a local file. It is an
// optional secondary sink; the relational store stays authoritative.
type FileBackup struct {
	mu   sync.Mutex
	path string
}

// NewFileBackup creates a backup writer for the given path.
func NewFileBackup(path string) *FileBackup {
	return &FileBackup{path: path}
}

// Append writes one reading as a JSON line.
func (b *FileBackup) Append(r solar.CombinedReading) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append to backup file: %w", err)
	}
	return nil
}
