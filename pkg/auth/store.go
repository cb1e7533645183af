package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// lockRetryDelay is how often a blocked FileStore retries its lock.
const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps the token in a JSON file readable only by its owner.
// A sibling .lock file serializes concurrent runs.
type FileStore struct {
	Path string
}

// NewFileStore returns a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultTokenPath returns the token file under the user config directory.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "release-radar", "token.json"), nil
}

func (s *FileStore) lock() *flock.Flock {
	return flock.New(s.Path + ".lock")
}

// Load implements TokenStore.
func (s *FileStore) Load(ctx context.Context) (*oauth2.Token, error) {
	if _, err := os.Stat(s.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}

	lk := s.lock()
	if _, err := lk.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("lock token file: %w", err)
	}
	defer lk.Unlock()

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.Path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// Save implements TokenStore. The file is replaced atomically with mode 0600.
func (s *FileStore) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	lk := s.lock()
	if _, err := lk.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("lock token file: %w", err)
	}
	defer lk.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".token-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// DefaultRedisKey is the key RedisStore uses when none is set.
const DefaultRedisKey = "radar:token:default"

// RedisStore keeps the token in Redis so several hosts can share one login.
type RedisStore struct {
	Client redis.UniversalClient
	Key    string
}

// NewRedisStore returns a store under key (default DefaultRedisKey).
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{Client: client, Key: key}
}

// Load implements TokenStore.
func (s *RedisStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.Client.Get(ctx, s.Key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// Save implements TokenStore.
func (s *RedisStore) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
