package db

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"calendar/config"
	"calendar/models"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Documents {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Documents{
		"memfs":  NewFSDocuments(memfs.New()),
		"osfs":   NewFSDocuments(osfs.New(t.TempDir())),
		"sqlite": sqlite,
	}
}

func TestDocumentsReadWrite(t *testing.T) {
	ctx := context.Background()
	for name, docs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := docs.Read(ctx, "data/nobody.json")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, docs.Write(ctx, "data/alice.json", []byte(`[1]`)))
			got, err := docs.Read(ctx, "data/alice.json")
			require.NoError(t, err)
			assert.Equal(t, `[1]`, string(got))

			require.NoError(t, docs.Write(ctx, "data/alice.json", []byte(`[1,2]`)))
			got, err = docs.Read(ctx, "data/alice.json")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))
		})
	}
}

func TestFSDocumentsLeavesNoTempFiles(t *testing.T) {
	fs := memfs.New()
	docs := NewFSDocuments(fs)
	ctx := context.Background()

	require.NoError(t, docs.Write(ctx, UsersKey, []byte(`{}`)))
	require.NoError(t, docs.Write(ctx, UsersKey, []byte(`{"a":{}}`)))

	entries, err := fs.ReadDir("users")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users.json", entries[0].Name())
}

func TestFSDocumentsOnDiskLayout(t *testing.T) {
	dir := t.TempDir()
	docs := NewFSDocuments(osfs.New(dir))

	require.NoError(t, docs.Write(context.Background(), EventsKey("alice"), []byte(`[]`)))

	data, err := os.ReadFile(filepath.Join(dir, "data", "alice.json"))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	docs, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FSDocuments{}, docs)

	cfg.Storage = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "calendar.db")
	docs, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteDocuments{}, docs)
	require.NoError(t, docs.Close())

	cfg.Storage = "nope"
	_, err = Open(cfg)
	assert.Error(t, err)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	docs := NewFSDocuments(memfs.New())
	store := NewUserStore(docs)

	users, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	users["alice"] = models.Credential{Username: "alice", PasswordHash: "$2a$04$hash"}
	require.NoError(t, store.Save(ctx, users))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, users, loaded)
}

func TestUserStoreCorrupt(t *testing.T) {
	ctx := context.Background()
	docs := NewFSDocuments(memfs.New())
	require.NoError(t, docs.Write(ctx, UsersKey, []byte(`{not json`)))

	_, err := NewUserStore(docs).Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptData)

	var corrupt *CorruptDataError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, UsersKey, corrupt.Key)

	// the broken document is left as it was
	data, err := docs.Read(ctx, UsersKey)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data))
}

type failingDocs struct{ Documents }

func (failingDocs) Write(context.Context, string, []byte) error { return os.ErrPermission }

func TestUserStoreSaveFailure(t *testing.T) {
	store := NewUserStore(failingDocs{NewFSDocuments(memfs.New())})
	err := store.Save(context.Background(), map[string]models.Credential{})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func newEventStore(t *testing.T) (*EventStore, Documents) {
	t.Helper()
	docs := NewFSDocuments(memfs.New())
	return NewEventStore(docs, zerolog.Nop()), docs
}

func TestEventStoreLoadMissing(t *testing.T) {
	store, _ := newEventStore(t)
	events := store.Load(context.Background(), "alice")
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestEventStoreLoadNormalizes(t *testing.T) {
	ctx := context.Background()
	store, docs := newEventStore(t)
	require.NoError(t, docs.Write(ctx, EventsKey("alice"), []byte(`[
		{"id": 1, "title": "a", "start": "2024-01-01T09:00"},
		{"id": 2, "title": "b", "start": "2024-01-02T09:00", "end": "2024-01-02T10:00", "color": "red"},
		{"title": "no id", "start": "2024-01-03"},
		{"id": 4, "start": "2024-01-04"},
		{"id": 5, "title": "no start"},
		42,
		null
	]`)))

	events := store.Load(ctx, "alice")
	require.Len(t, events, 2)

	assert.Equal(t, "2024-01-01T09:00", events[0].End())
	assert.Equal(t, "2024-01-02T10:00", events[1].End())
	assert.JSONEq(t, `"red"`, string(events[1]["color"]))
}

func TestEventStoreLoadMalformed(t *testing.T) {
	ctx := context.Background()
	store, docs := newEventStore(t)

	for _, body := range []string{`[{"id": 1,`, `{"id": 1}`, `"text"`} {
		require.NoError(t, docs.Write(ctx, EventsKey("alice"), []byte(body)))
		assert.Empty(t, store.Load(ctx, "alice"), body)
	}
}

func TestEventStoreSave(t *testing.T) {
	ctx := context.Background()
	store, docs := newEventStore(t)

	require.NoError(t, store.Save(ctx, "alice", nil))
	data, err := docs.Read(ctx, EventsKey("alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	ev := models.Event{
		models.FieldTitle: json.RawMessage(`"Standup"`),
		models.FieldStart: json.RawMessage(`"2024-01-01T09:00"`),
	}
	ev.SetID(models.IntID(1))
	require.NoError(t, store.Save(ctx, "alice", []models.Event{ev}))

	events := store.Load(ctx, "alice")
	require.Len(t, events, 1)
	id, ok := events[0].ID()
	require.True(t, ok)
	assert.Equal(t, models.EventID("1"), id)
}

func TestEventStoreSaveFailure(t *testing.T) {
	store := NewEventStore(failingDocs{NewFSDocuments(memfs.New())}, zerolog.Nop())
	err := store.Save(context.Background(), "alice", nil)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, EventsKey("alice"), perr.Key)
}

func TestKeyedMutex(t *testing.T) {
	var m KeyedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("alice")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, m.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var m KeyedMutex
	unlockA := m.Lock("alice")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("bob")
		unlock()
		close(done)
	}()
	<-done
}
