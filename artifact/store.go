// Package artifact writes per-job inspection artifacts to the local
// filesystem. Each job gets its own directory and artifacts are numbered
// in write order, so a job's history reads top to bottom.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Store writes artifacts as JSON files under <base>/<jobID>/NNN_<name>.json.
type Store struct {
	base string

	mu   sync.Mutex
	seqs map[string]int
}

// New creates a store rooted at the base directory.
func New(base string) *Store {
	return &Store{
		base: base,
		seqs: map[string]int{},
	}
}

// Write persists one artifact. The payload is marshaled as indented JSON.
func (s *Store) Write(jobID, name string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode artifact", goerr.V("name", name))
	}

	s.mu.Lock()
	s.seqs[jobID]++
	seq := s.seqs[jobID]
	s.mu.Unlock()

	dir := filepath.Join(s.base, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create artifact directory", goerr.V("dir", dir))
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.json", seq, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write artifact", goerr.V("path", path))
	}
	return nil
}
