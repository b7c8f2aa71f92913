package statemanager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
)

// Manager is a generic wrapper around a state object T which is serialized to the storage as JSON.
// It provides ways to safely mutate the state, backed by file locks.
// Writes replace the state file atomically so readers never observe a partial state.
type Manager[T any] struct {
	state T
	path  string
}

// New initializes a state manager with the provided state and overwrites existing state.
func New[T any](initialState T, p string) (*Manager[T], error) {
	m := Manager[T]{
		state: initialState,
		path:  p,
	}
	err := m.Commit()
	if err != nil {
		log.WithError(err).Debug("failed to initialize state")
		return nil, err
	}
	return &m, nil
}

// NewFromDisk initializes a state manager with the state that exists on disk.
// The provided default is only used while the file is missing, empty or corrupted.
func NewFromDisk[T any](defaultState T, path string) (*Manager[T], error) {
	m := Manager[T]{
		state: defaultState,
		path:  path,
	}
	_, err := m.Load()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Path returns the location of the state file.
func (m *Manager[T]) Path() string {
	return m.path
}

func (m *Manager[T]) lock() *flock.Flock {
	return flock.New(m.path + ".lock")
}

// Commit acquires an exclusive lock, then atomically writes the current state to the file.
func (m *Manager[T]) Commit() error {
	fileLock := m.lock()
	if err := fileLock.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = fileLock.Unlock()
	}()
	return m.write()
}

// Load acquires a shared lock, then reads and decodes the state from the file.
// Missing, empty or corrupted files yield the current in-memory state.
func (m *Manager[T]) Load() (*T, error) {
	fileLock := m.lock()
	if err := fileLock.RLock(); err != nil {
		return nil, err
	}
	defer func() {
		_ = fileLock.Unlock()
	}()
	if err := m.read(); err != nil {
		return nil, err
	}
	return &m.state, nil
}

// ModifyState acquires an exclusive lock, loads the current state.
// It then calls the callback function on the state to modify it before writing back to disk.
// If the callback fails the file is left untouched.
func (m *Manager[T]) ModifyState(cb func(*T) error) error {
	fileLock := m.lock()
	if err := fileLock.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = fileLock.Unlock()
	}()
	if err := m.read(); err != nil {
		return err
	}
	previous := m.state
	if err := cb(&m.state); err != nil {
		m.state = previous
		return err
	}
	return m.write()
}

func (m *Manager[T]) read() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	// the file is authoritative, fields it omits are zero
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		var syntaxError *json.SyntaxError
		if errors.As(err, &syntaxError) {
			log.WithError(err).WithField("path", m.path).Warn("ignoring corrupted state file")
			return nil
		}
		return fmt.Errorf("failed to decode state file %q: %w", m.path, err)
	}
	m.state = decoded
	return nil
}

func (m *Manager[T]) write() error {
	data, err := json.Marshal(m.state)
	if err != nil {
		return err
	}
	return fileutils.AtomicWriteFile(m.path, data, 0600)
}
