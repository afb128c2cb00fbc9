// Package userstest provides an in-memory users.Store for tests.
package userstest

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"user-gateway/internal/users"
)

// Store is a map-backed users.Store. Update interprets the builder's column
// list rather than the SQL text.
type Store struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]users.User
	calls map[string]int

	// Err, when set, is returned by every operation.
	Err error
}

func New(seed ...users.User) *Store {
	s := &Store{rows: make(map[uuid.UUID]users.User), calls: make(map[string]int)}
	for _, u := range seed {
		s.rows[u.ID] = u
	}
	return s
}

// Calls reports how often op ("find", "create", "update", "delete") ran.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) Find(_ context.Context, id uuid.UUID) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["find"]++
	if s.Err != nil {
		return users.User{}, s.Err
	}
	u, ok := s.rows[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) Create(_ context.Context, u users.User) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["create"]++
	if s.Err != nil {
		return users.User{}, s.Err
	}
	if _, ok := s.rows[u.ID]; ok {
		return users.User{}, users.ErrUserExists
	}
	s.rows[u.ID] = u
	return u, nil
}

func (s *Store) Update(_ context.Context, cmd users.UpdateCommand) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["update"]++
	if s.Err != nil {
		return users.User{}, s.Err
	}
	id, err := uuid.Parse(cmd.UserID)
	if err != nil {
		return users.User{}, users.ErrInvalidIdentifier
	}
	u, ok := s.rows[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	for i, col := range cmd.Columns {
		v := cmd.Args[i].(string)
		switch strings.ToLower(col) {
		case "username":
			u.Username = v
		case "email":
			u.Email = &v
		}
	}
	s.rows[id] = u
	return u, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["delete"]++
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.rows[id]; !ok {
		return users.ErrUserNotFound
	}
	delete(s.rows, id)
	return nil
}

var _ users.Store = (*Store)(nil)
