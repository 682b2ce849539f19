package wearable

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
)

// CredentialStore loads and saves the OAuth2 token for the device API.
type CredentialStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// FileCredentialStore keeps the token as a JSON file on disk.
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore creates a store backed by the given file path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) Load(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read credential file", goerr.V("path", s.path))
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, goerr.Wrap(err, "failed to parse credential file", goerr.V("path", s.path))
	}
	return &token, nil
}

func (s *FileCredentialStore) Save(ctx context.Context, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode credential")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return goerr.Wrap(err, "failed to create credential directory", goerr.V("path", s.path))
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write credential file", goerr.V("path", s.path))
	}
	return nil
}

// MemoryCredentialStore keeps the token in memory. Intended for tests.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token *oauth2.Token
}

// NewMemoryCredentialStore creates a store pre-loaded with the token.
func NewMemoryCredentialStore(token *oauth2.Token) *MemoryCredentialStore {
	return &MemoryCredentialStore{token: token}
}

func (s *MemoryCredentialStore) Load(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, goerr.New("no credential stored")
	}
	return s.token, nil
}

func (s *MemoryCredentialStore) Save(ctx context.Context, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}
