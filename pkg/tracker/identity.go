package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Storage keys.
const (
	KeyVisitorID        = "visitor_id"
	KeyVisitorFirstSeen = "visitor_first_seen_at"
	KeySessionID        = "session_id"
)

// Storage is a string key-value store. The visitor id lives in durable
// (profile-scoped) storage, the session id in tab-scoped storage.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// MemoryStorage keeps values for the lifetime of the process. Safe for concurrent use.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FileStorage persists values as a JSON object in a single file.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage stores values at path. The file is created on first Set.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write storage: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStorage) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode storage: %w", err)
	}
	return values, nil
}

// Identity hands out the visitor and session ids. It never fails: when
// storage is unusable a fresh, unpersisted id is returned on every call.
// Safe for concurrent use; each lookup-or-create runs under one lock.
type Identity struct {
	mu      sync.Mutex
	durable Storage
	tab     Storage
	now     func() time.Time
}

// NewIdentity creates an Identity over the two storage scopes. A nil clock uses time.Now.
func NewIdentity(durable, tab Storage, now func() time.Time) *Identity {
	if now == nil {
		now = time.Now
	}
	return &Identity{durable: durable, tab: tab, now: now}
}

// GetVisitorID returns the durable visitor id and whether it was created by this call.
func (i *Identity) GetVisitorID() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.durable != nil {
		if id, ok, err := i.durable.Get(KeyVisitorID); err == nil && ok && id != "" {
			return id, false
		}
	}

	now := i.now()
	id := newID("vis", now)
	if i.durable != nil {
		if err := i.durable.Set(KeyVisitorID, id); err == nil {
			_ = i.durable.Set(KeyVisitorFirstSeen, now.UTC().Format(time.RFC3339))
		}
	}
	return id, true
}

// GetSessionID returns the tab-scoped session id, creating it when absent.
func (i *Identity) GetSessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tab != nil {
		if id, ok, err := i.tab.Get(KeySessionID); err == nil && ok && id != "" {
			return id
		}
	}

	id := newID("sess", i.now())
	if i.tab != nil {
		_ = i.tab.Set(KeySessionID, id)
	}
	return id
}

// newID formats <prefix>_<unix-ms>_<9 random hex chars>.
func newID(prefix string, at time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%d_%s", prefix, at.UnixMilli(), random[:9])
}
