package tracker

import (
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	visitorPattern = regexp.MustCompile(`^vis_\d+_[0-9a-f]{9}$`)
	sessionPattern = regexp.MustCompile(`^sess_\d+_[0-9a-f]{9}$`)
)

func TestIdentity(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return at }

	t.Run("visitor id is created once", func(t *testing.T) {
		durable := NewMemoryStorage()
		id := NewIdentity(durable, NewMemoryStorage(), now)

		first, isNew := id.GetVisitorID()
		assert.True(t, isNew)
		assert.Regexp(t, visitorPattern, first)
		assert.Contains(t, first, "_1709280000000_")

		again, isNew := id.GetVisitorID()
		assert.False(t, isNew)
		assert.Equal(t, first, again)

		seen, ok, err := durable.Get(KeyVisitorFirstSeen)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2024-03-01T08:00:00Z", seen)
	})

	t.Run("session id is stable within a tab", func(t *testing.T) {
		durable := NewMemoryStorage()
		tab1 := NewIdentity(durable, NewMemoryStorage(), now)
		tab2 := NewIdentity(durable, NewMemoryStorage(), now)

		s1 := tab1.GetSessionID()
		assert.Regexp(t, sessionPattern, s1)
		assert.Equal(t, s1, tab1.GetSessionID())
		assert.NotEqual(t, s1, tab2.GetSessionID())

		v1, _ := tab1.GetVisitorID()
		v2, isNew := tab2.GetVisitorID()
		assert.Equal(t, v1, v2, "tabs share the durable visitor")
		assert.False(t, isNew)
	})

	t.Run("storage failures still produce ids", func(t *testing.T) {
		id := NewIdentity(failingStorage{}, failingStorage{}, now)

		v1, isNew := id.GetVisitorID()
		assert.True(t, isNew)
		v2, _ := id.GetVisitorID()
		assert.NotEqual(t, v1, v2)

		assert.NotEqual(t, id.GetSessionID(), id.GetSessionID())
	})
}

func TestIdentityConcurrentFirstUse(t *testing.T) {
	const workers = 8

	for iteration := 0; iteration < 50; iteration++ {
		id := NewIdentity(NewMemoryStorage(), NewMemoryStorage(), nil)

		var (
			mu       sync.Mutex
			visitors = map[string]struct{}{}
			sessions = map[string]struct{}{}
			created  int
			wg       sync.WaitGroup
		)
		start := make(chan struct{})
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				visitor, isNew := id.GetVisitorID()
				session := id.GetSessionID()

				mu.Lock()
				defer mu.Unlock()
				visitors[visitor] = struct{}{}
				sessions[session] = struct{}{}
				if isNew {
					created++
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Len(t, visitors, 1, "iteration %d", iteration)
		require.Len(t, sessions, 1, "iteration %d", iteration)
		require.Equal(t, 1, created, "iteration %d", iteration)
	}
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "tracker.json")

	store := NewFileStorage(path)
	_, ok, err := store.Get(KeyVisitorID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(KeyVisitorID, "vis_1_abc"))

	reopened := NewFileStorage(path)
	v, ok, err := reopened.Get(KeyVisitorID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "vis_1_abc", v)

	id := NewIdentity(reopened, NewMemoryStorage(), nil)
	visitor, isNew := id.GetVisitorID()
	assert.Equal(t, "vis_1_abc", visitor)
	assert.False(t, isNew)
}
