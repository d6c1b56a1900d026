package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/devlens/enginemetrics/errkind"
)

// ArtifactStore persists encoded artifacts keyed by their cache key.
// Both the file and Redis backends implement this so the memory tier's
// promotion logic is backend-agnostic.
type ArtifactStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// FileStore is the default cold tier: one file per key under dir, with a
// per-key lock serializing reads/writes of that key's file. The lock is
// held only for the duration of one Load, Save or Delete call; it does
// not cover building an artifact, so two builds for the same key may run
// concurrently.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore constructs a FileStore rooted at dir, creating it if
// necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errkind.New(errkind.Internal, "cache.NewFileStore", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".bin")
}

// Load reads the artifact for key, if present, atomically (a completed
// rename from the writer guarantees readers never see a partial file).
func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errkind.New(errkind.Internal, "cache.FileStore.Load", err)
	}
	return data, true, nil
}

// Save writes data for key via a temp file + rename so concurrent
// readers never observe a torn write.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return errkind.New(errkind.Internal, "cache.FileStore.Save", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errkind.New(errkind.Internal, "cache.FileStore.Save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errkind.New(errkind.Internal, "cache.FileStore.Save", err)
	}
	if err := tmp.Close(); err != nil {
		return errkind.New(errkind.Internal, "cache.FileStore.Save", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errkind.New(errkind.Internal, "cache.FileStore.Save", err)
	}
	return nil
}

// Delete removes the artifact for key, if present.
func (s *FileStore) Delete(_ context.Context, key string) error {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errkind.New(errkind.Internal, "cache.FileStore.Delete", err)
	}
	return nil
}

// Keys lists every key currently on disk.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "cache.FileStore.Keys", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		const suffix = ".bin"
		if filepath.Ext(name) == suffix {
			keys = append(keys, name[:len(name)-len(suffix)])
		}
	}
	return keys, nil
}

var _ ArtifactStore = (*FileStore)(nil)
