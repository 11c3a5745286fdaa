package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/relay/pkg/errors"
)

// Store persists session records.
type Store interface {
	Save(ctx context.Context, s *State) error
	// Load returns NOT_FOUND when the id is unknown.
	Load(ctx context.Context, id string) (*State, error)
	List(ctx context.Context, filter Filter) ([]*State, error)
	Delete(ctx context.Context, id string) error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Domain Domain
	Status Status
	Limit  int
}

func (f Filter) match(s *State) bool {
	if f.Domain != "" && s.Domain != f.Domain {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

func notFound(id string) error {
	return errors.New(errors.CodeNotFound, "session not found", nil).WithContext("session_id", id)
}

// sortAndLimit orders by creation time, oldest first.
func sortAndLimit(out []*State, limit int) []*State {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*State)}
}

func (m *MemoryStore) Save(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*State
	for _, s := range m.sessions {
		if filter.match(s) {
			out = append(out, s.Clone())
		}
	}
	return sortAndLimit(out, filter.Limit), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound(id)
	}
	delete(m.sessions, id)
	return nil
}

// FileStore keeps one JSON file per session under a directory. Writes go to
// a temporary file first and are renamed into place.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func (f *FileStore) Save(_ context.Context, s *State) error {
	if !validID(s.ID) {
		return errors.Validation("id", "invalid session id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	tmp, err := os.CreateTemp(f.dir, "."+s.ID+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path(s.ID)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (f *FileStore) Load(_ context.Context, id string) (*State, error) {
	if !validID(id) {
		return nil, notFound(id)
	}
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return decodeState(data)
}

func (f *FileStore) List(_ context.Context, filter Filter) ([]*State, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*State
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			return nil, err
		}
		s, err := decodeState(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if filter.match(s) {
			out = append(out, s)
		}
	}
	return sortAndLimit(out, filter.Limit), nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return notFound(id)
	}
	err := os.Remove(f.path(id))
	if stderrors.Is(err, os.ErrNotExist) {
		return notFound(id)
	}
	return err
}

func decodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Context == nil {
		s.Context = make(map[string]AgentResult)
	}
	return &s, nil
}
