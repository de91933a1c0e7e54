package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/google/uuid"
)

// FileStore is an InMemoryStore persisted to a JSON file after every mutation
type FileStore struct {
	*InMemoryStore

	path    string
	writeMu sync.Mutex
}

// NewFileStore loads meetings from path (a missing file starts empty)
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("meetings file path cannot be empty")
	}

	store := &FileStore{
		InMemoryStore: NewInMemoryStore(),
		path:          path,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return store, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read meetings file: %w", err)
	}

	var meetings []booking.Meeting
	if len(data) > 0 {
		if err := json.Unmarshal(data, &meetings); err != nil {
			return nil, fmt.Errorf("failed to parse meetings file: %w", err)
		}
	}
	if meetings == nil {
		meetings = []booking.Meeting{}
	}

	store.load(meetings)
	return store, nil
}

// Insert stores a meeting and flushes the file
func (s *FileStore) Insert(ctx context.Context, meeting *booking.Meeting) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.InMemoryStore.Insert(ctx, meeting); err != nil {
		return err
	}

	if err := s.flush(ctx); err != nil {
		// Keep memory and disk consistent
		_ = s.InMemoryStore.Remove(ctx, meeting.ID)
		return err
	}
	return nil
}

// Remove deletes a meeting and flushes the file
func (s *FileStore) Remove(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.InMemoryStore.Remove(ctx, id); err != nil {
		return err
	}
	return s.flush(ctx)
}

// flush atomically rewrites the file through a temp file and rename
func (s *FileStore) flush(ctx context.Context) error {
	meetings, err := s.InMemoryStore.List(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(meetings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode meetings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create meetings directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write meetings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace meetings file: %w", err)
	}

	return nil
}
