// Package db stores the calendar's JSON documents: one shared users document
// and one events document per username.
package db

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"calendar/config"

	"github.com/go-git/go-billy/v5/osfs"
)

var (
	// ErrNotFound is returned by Documents.Read for a key never written.
	ErrNotFound = errors.New("document not found")

	// ErrCorruptData matches any *CorruptDataError.
	ErrCorruptData = errors.New("corrupt data")
)

// UsersKey is the document holding every credential record.
const UsersKey = "users/users.json"

// EventsKey is the document holding one user's events.
func EventsKey(username string) string {
	return path.Join("data", username+".json")
}

// Documents is a flat key to blob store. Write replaces the whole document.
type Documents interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open returns the backend selected in the configuration.
func Open(cfg *config.Config) (Documents, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case config.StorageFS:
		return NewFSDocuments(osfs.New(cfg.DataDir)), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

type CorruptDataError struct {
	Key string
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt data in %s: %v", e.Key, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

func (e *CorruptDataError) Is(target error) bool { return target == ErrCorruptData }

// PersistenceError reports a failed document write.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// KeyedMutex serializes read-modify-write cycles on the same document inside
// one process. Separate processes sharing a data directory still race.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (m *KeyedMutex) Lock(key string) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
