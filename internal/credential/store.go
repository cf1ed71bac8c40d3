// Package credential provides the token source the realtime supervisor reads
// and notifications when the stored token changes.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/pkg/logger"
)

// Source supplies the current credential. An empty string means no
// credential is available. Token must not block.
type Source interface {
	Token() string
}

// Static is a fixed credential.
type Static string

// Token implements Source.
func (s Static) Token() string { return string(s) }

// FileStore keeps the access token in a single file, readable only by the
// owner.
type FileStore struct {
	path string
	now  func() time.Time

	mu          sync.Mutex
	warnedStale string
}

var _ Source = (*FileStore)(nil)

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Token implements Source. Missing files, empty files and tokens whose exp
// claim has passed all read as "no credential".
func (s *FileStore) Token() string {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("credential: read %s: %v", s.path, err)
		}
		return ""
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return ""
	}
	if info, ok := auth.Inspect(token); ok && info.Expired(s.now()) {
		s.warnStale(token)
		return ""
	}
	return token
}

// Save atomically replaces the stored token.
func (s *FileStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".access-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("install credential: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an absent token is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

func (s *FileStore) warnStale(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warnedStale == token {
		return
	}
	s.warnedStale = token
	logger.Warnf("credential: stored token has expired; run `bazaar login` again")
}
