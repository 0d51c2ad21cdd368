package editlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const lockRetry = 20 * time.Millisecond

// FileStorage keeps a flat JSON object of keys to values in one file. It is
// shared by every process on the host that opens the same path; writes take
// an exclusive flock on path+".lock" and replace the file atomically.
type FileStorage struct {
	path     string
	fileLock *flock.Flock
	mu       sync.Mutex
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path, fileLock: flock.New(path + ".lock")}
}

func (s *FileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.withLock(ctx, false, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		value, ok = values[key]
		return nil
	})
	return value, ok, err
}

func (s *FileStorage) Set(ctx context.Context, key, value string) error {
	return s.withLock(ctx, true, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		values[key] = value
		return s.save(values)
	})
}

func (s *FileStorage) Remove(ctx context.Context, key string) error {
	return s.withLock(ctx, true, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := values[key]; !ok {
			return nil
		}
		delete(values, key)
		return s.save(values)
	})
}

func (s *FileStorage) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.fileLock.TryLockContext(ctx, lockRetry)
	} else {
		locked, err = s.fileLock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", s.path)
	}
	defer func() { _ = s.fileLock.Unlock() }()
	return fn()
}

func (s *FileStorage) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	values := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStorage) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
