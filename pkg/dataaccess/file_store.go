package dataaccess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Jacobbrewer1/hound/pkg/dataaccess/monitoring"
	"github.com/Jacobbrewer1/hound/pkg/logging"
)

const fileStoreName = "file_store"

type fileStore struct {
	// l is the logger.
	l *slog.Logger

	// dir is the directory that documents are written to.
	dir string

	// mut serialises writes so a document is never written by two goroutines at once.
	mut sync.Mutex
}

// NewFileStore creates a document store that keeps each document as <dir>/<name>.json.
func NewFileStore(l *slog.Logger, dir string) (DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}

	return &fileStore{
		l:   l.With(slog.String(logging.KeyDal, fileStoreName)),
		dir: dir,
	}, nil
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) Load(_ context.Context, name string, v any) (err error) {
	done := monitoring.Observe(fileStoreName, "load", name)
	defer func() { done(err) }()

	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("error reading document %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error decoding document %s: %w", name, err)
	}
	return nil
}

func (s *fileStore) Save(_ context.Context, name string, v any) (err error) {
	done := monitoring.Observe(fileStoreName, "save", name)
	defer func() { done(err) }()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding document %s: %w", name, err)
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	// Write to a temporary file and rename so a crash never leaves a half written document.
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing document %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("error replacing document %s: %w", name, err)
	}

	s.l.Debug("Saved document", slog.String("document", name))
	return nil
}

func (s *fileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("error reading data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", s.dir)
	}
	return nil
}
