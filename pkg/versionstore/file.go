package versionstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unbasical/bundleota/pkg/statemanager"
)

type fileState struct {
	Version  string  `json:"version"`
	Metadata *string `json:"metadata"`
}

// FileStore keeps the state in a JSON file guarded by a file lock,
// which makes it safe to share between the agent and CLI invocations.
type FileStore struct {
	state *statemanager.Manager[fileState]
}

// NewFileStore opens the state file at path, creating its directory if required.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	m, err := statemanager.NewFromDisk(fileState{}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load version state from %q: %w", path, err)
	}
	return &FileStore{state: m}, nil
}

func (f *FileStore) CurrentVersion(_ context.Context) (string, error) {
	s, err := f.state.Load()
	if err != nil {
		return "", err
	}
	return s.Version, nil
}

func (f *FileStore) SetCurrentVersion(_ context.Context, v string) error {
	return f.state.ModifyState(func(s *fileState) error {
		s.Version = v
		return nil
	})
}

func (f *FileStore) Metadata(_ context.Context) (string, bool, error) {
	s, err := f.state.Load()
	if err != nil {
		return "", false, err
	}
	if s.Metadata == nil {
		return "", false, nil
	}
	return *s.Metadata, true, nil
}

func (f *FileStore) SetMetadata(_ context.Context, v string) error {
	return f.state.ModifyState(func(s *fileState) error {
		s.Metadata = &v
		return nil
	})
}
