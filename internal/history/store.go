package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hkuds/autopy/internal/refine"
)

const runFileExt = ".jsonl"

// maxLineSize bounds one JSONL line; records carry full completions.
const maxLineSize = 4 * 1024 * 1024

// ErrNotFound is returned when no run matches an ID.
var ErrNotFound = errors.New("run not found")

// Store keeps one JSONL file per run. The first line holds the run
// metadata and each following line one iteration record.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory runs are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists run, replacing any earlier file for the same ID.
func (s *Store) Save(run *Run) error {
	if run == nil {
		return fmt.Errorf("cannot save nil run")
	}
	if safeID(run.ID) == "" {
		return fmt.Errorf("invalid run id %q", run.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(run.ID)
	tmp, err := os.CreateTemp(s.dir, ".run-*")
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	if err := enc.Encode(run); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	for _, rec := range run.Records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write record %d: %w", rec.Index, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set run file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close run file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save run file: %w", err)
	}
	return nil
}

// Load reads a run with its records. id may be a unique prefix.
func (s *Store) Load(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.loadFile(s.filePath(full), true)
}

// List returns summaries of all runs, newest first.
func (s *Store) List() ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var runs []RunInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), runFileExt) {
			continue
		}
		run, err := s.loadFile(filepath.Join(s.dir, entry.Name()), false)
		if err != nil {
			// Skip unreadable or truncated files
			continue
		}
		runs = append(runs, run.Info())
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Delete removes a run. id may be a unique prefix.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(full)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete run %s: %w", full, err)
	}
	return nil
}

// resolve expands an ID prefix to a stored run ID.
func (s *Store) resolve(id string) (string, error) {
	id = safeID(id)
	if id == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(s.filePath(id)); err == nil {
		return id, nil
	}

	matches, _ := filepath.Glob(filepath.Join(s.dir, id+"*"+runFileExt))
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return strings.TrimSuffix(filepath.Base(matches[0]), runFileExt), nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous (%d matches)", id, len(matches))
	}
}

func (s *Store) loadFile(path string, withRecords bool) (*Run, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open run file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	// Read metadata from first line
	if !scanner.Scan() {
		return nil, fmt.Errorf("run file %s is empty", path)
	}
	var run Run
	if err := json.Unmarshal(scanner.Bytes(), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}

	for scanner.Scan() {
		if !withRecords {
			run.Records = append(run.Records, refine.IterationRecord{})
			continue
		}
		var rec refine.IterationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // Skip malformed records
		}
		run.Records = append(run.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	return &run, nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.dir, id+runFileExt)
}

// safeID strips anything that could escape the history directory.
func safeID(id string) string {
	id = strings.ReplaceAll(id, "\x00", "")
	id = strings.ReplaceAll(id, "..", "")
	id = strings.ReplaceAll(id, "/", "")
	id = strings.ReplaceAll(id, "\\", "")
	id = strings.ReplaceAll(id, "*", "")
	id = strings.ReplaceAll(id, "?", "")
	id = strings.ReplaceAll(id, "[", "")
	return strings.TrimSpace(id)
}
