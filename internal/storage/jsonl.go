package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dexsim/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) Path() string { return s.path }

// PutSnapshots appends snapshots as JSON lines.
func (s *JsonlStorage) PutSnapshots(_ context.Context, snapshots []model.Snapshot) error {
	records := make([]interface{}, len(snapshots))
	for i := range snapshots {
		records[i] = snapshots[i]
	}
	return s.append("snapshot", records)
}

// PutRouteRuns appends route runs as JSON lines.
func (s *JsonlStorage) PutRouteRuns(_ context.Context, runs []model.RouteRun) error {
	records := make([]interface{}, len(runs))
	for i := range runs {
		records[i] = runs[i]
	}
	return s.append("route run", records)
}

func (s *JsonlStorage) append(kind string, records []interface{}) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", kind, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
