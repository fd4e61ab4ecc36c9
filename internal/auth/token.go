package auth

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appLog "campuscal/internal/log"
)

// TokenStore keeps the portal's bearer token on disk, the way the browser
// client keeps it in local storage. A nil *TokenStore holds no token.
type TokenStore struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	token string
	read  bool
}

// NewTokenStore returns a store backed by path. The file is read lazily.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path, now: time.Now}
}

// Token returns the stored token, or "" when there is none or the token is
// a JWT whose exp claim has passed.
func (s *TokenStore) Token() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.read {
		s.token = s.load()
		s.read = true
	}
	if s.token != "" && expired(s.token, s.now()) {
		appLog.Info("stored token expired; dropping it", "path", s.path)
		s.token = ""
		s.remove()
	}
	return s.token
}

// Set stores token, replacing any previous one.
func (s *TokenStore) Set(token string) error {
	if s == nil {
		return errors.New("token store is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, []byte(token+"\n")); err != nil {
		return err
	}
	s.token = token
	s.read = true
	return nil
}

// Invalidate forgets the token, e.g. after the service answered 401.
func (s *TokenStore) Invalidate() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.read = true
	s.remove()
}

func (s *TokenStore) load() string {
	if s.path == "" {
		return ""
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("token read failed", err, "path", s.path)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *TokenStore) remove() {
	if s.path == "" {
		return
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("token remove failed", err, "path", s.path)
	}
}

// expired reports whether token is a JWT with an exp claim at or before now.
// Opaque tokens never expire locally; the service decides.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// writeFileAtomic writes data via a temp file + rename with 0600 perms.
func writeFileAtomic(path string, data []byte) error {
	if path == "" {
		return errors.New("token path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".campuscal-token-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
