package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

// FileReader serves pool states from a JSONL file of snapshots. When a pool
// appears more than once the last line wins.
type FileReader struct {
	path      string
	snapshots map[string]model.Snapshot
}

func NewFileReader(path string) (*FileReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshots: %w", err)
	}
	defer file.Close()

	r := &FileReader{path: path, snapshots: make(map[string]model.Snapshot)}
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := snap.State.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := snap.State.CheckWords(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		r.snapshots[snap.State.ID] = snap
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	return r, nil
}

func (r *FileReader) ReadPoolState(_ context.Context, poolID string) (model.State, error) {
	snap, ok := r.snapshots[poolID]
	if !ok {
		return model.State{}, fmt.Errorf("%s in %s: %w", poolID, r.path, dexerr.ErrUnknownPool)
	}
	return snap.State.Clone(), nil
}

// Snapshot returns the stored snapshot of poolID.
func (r *FileReader) Snapshot(poolID string) (model.Snapshot, bool) {
	snap, ok := r.snapshots[poolID]
	if ok {
		snap.State = snap.State.Clone()
	}
	return snap, ok
}

// PoolIDs lists the pools in the file in sorted order.
func (r *FileReader) PoolIDs() []string {
	ids := make([]string, 0, len(r.snapshots))
	for id := range r.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
