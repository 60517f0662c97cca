package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists users keyed by username.
type Store interface {
	Get(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, u User) error
	// Update loads the user, applies fn and persists the result unless fn returns an error.
	Update(ctx context.Context, username string, fn func(*User) error) (User, error)
	List(ctx context.Context) ([]User, error)
}

// record is the on-disk shape: the API fields plus the password hash.
type record struct {
	User
	Hash string `json:"password_hash"`
}

// FileStore keeps users in a JSON array file. Every mutation rewrites the file through a
// temporary file and rename so readers never observe a partial write.
type FileStore struct {
	path string

	mu    sync.Mutex
	users []User
}

// OpenFileStore loads path, creating it (and its directory) with an empty list if missing.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create users dir: %w", err)
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read users file: %w", err)
	}

	var records []record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse users file %s: %w", path, err)
		}
	}
	s.users = make([]User, 0, len(records))
	for _, r := range records {
		u := r.User
		u.PasswordHash = r.Hash
		if u.ActiveConditions == nil {
			u.ActiveConditions = []string{}
		}
		s.users = append(s.users, u)
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(username)
	if i < 0 {
		return User{}, ErrNotFound
	}
	return s.users[i].clone(), nil
}

func (s *FileStore) Create(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(u.Username) >= 0 {
		return ErrUsernameTaken
	}
	s.users = append(s.users, u.clone())
	if err := s.persist(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return err
	}
	return nil
}

func (s *FileStore) Update(_ context.Context, username string, fn func(*User) error) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(username)
	if i < 0 {
		return User{}, ErrNotFound
	}
	prev := s.users[i]
	next := prev.clone()
	if err := fn(&next); err != nil {
		return User{}, err
	}
	s.users[i] = next
	if err := s.persist(); err != nil {
		s.users[i] = prev
		return User{}, err
	}
	return next.clone(), nil
}

func (s *FileStore) List(_ context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, len(s.users))
	for i, u := range s.users {
		out[i] = u.clone()
	}
	return out, nil
}

func (s *FileStore) indexOf(username string) int {
	for i, u := range s.users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *FileStore) persist() error {
	records := make([]record, len(s.users))
	for i, u := range s.users {
		records[i] = record{User: u, Hash: u.PasswordHash}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
