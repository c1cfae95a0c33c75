// Package snapshot stores the output of suite tests and compares later runs
// against it.
//
// Snapshots of a suite file live next to it in
// __snapshots__/<suite>.snap.json, keyed by test name.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
)

const (
	// SnapshotDir is the directory name for storing snapshots
	SnapshotDir = "__snapshots__"
	// SnapshotExt is the file extension for snapshot files
	SnapshotExt = ".snap.json"
)

// Manager handles snapshot storage and comparison.
type Manager struct {
	updateMode bool

	mu    sync.Mutex
	files map[string]map[string]any // snapshot file -> {test -> value}
}

// NewManager creates a snapshot manager. In update mode missing and
// mismatched snapshots are written instead of failing.
func NewManager(updateMode bool) *Manager {
	return &Manager{
		updateMode: updateMode,
		files:      make(map[string]map[string]any),
	}
}

// Result represents the result of a snapshot comparison.
type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	IsNew    bool
	Updated  bool
}

// Compare checks actual against the snapshot stored for testName in the
// snapshot file of suitePath.
func (m *Manager) Compare(suitePath, testName string, actual any) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &Result{Actual: actual}
	path := FilePath(suitePath)

	snapshots, err := m.load(path)
	if err != nil {
		result.Message = fmt.Sprintf("failed to load snapshots: %v", err)
		return result
	}

	expected, exists := snapshots[testName]
	result.Expected = expected
	switch {
	case exists && equal(expected, actual):
		result.Passed = true
		return result
	case !m.updateMode && !exists:
		result.Message = "snapshot does not exist (run with --update-snapshots to create)"
		return result
	case !m.updateMode:
		result.Message = "snapshot mismatch: " + describeMismatch(expected, actual)
		return result
	}

	snapshots[testName] = actual
	if err := m.save(path, snapshots); err != nil {
		result.Message = fmt.Sprintf("failed to save snapshot: %v", err)
		return result
	}
	result.Passed = true
	result.Expected = actual
	if exists {
		result.Updated = true
		result.Message = "snapshot updated"
	} else {
		result.IsNew = true
		result.Message = "new snapshot created"
	}
	return result
}

// FilePath returns the snapshot file of a suite file.
func FilePath(suitePath string) string {
	dir := filepath.Dir(suitePath)
	base := filepath.Base(suitePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, SnapshotDir, name+SnapshotExt)
}

func (m *Manager) load(path string) (map[string]any, error) {
	if cached, ok := m.files[path]; ok {
		return cached, nil
	}

	snapshots := make(map[string]any)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, &snapshots); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	m.files[path] = snapshots
	return snapshots, nil
}

func (m *Manager) save(path string, snapshots map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// equal compares through a JSON round trip so numbers read back from a
// snapshot file match the values they were written from.
func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// describeMismatch names the first differing line of two string values, or
// prints both values otherwise.
func describeMismatch(expected, actual any) string {
	es, eok := expected.(string)
	as, aok := actual.(string)
	if !eok || !aok {
		return fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	el := strings.Split(es, "\n")
	al := strings.Split(as, "\n")
	for i := 0; i < max(len(el), len(al)); i++ {
		var e, a string
		if i < len(el) {
			e = el[i]
		}
		if i < len(al) {
			a = al[i]
		}
		if e != a {
			return fmt.Sprintf("line %d: expected %q, got %q", i+1, e, a)
		}
	}
	return fmt.Sprintf("expected %q, got %q", es, as)
}
