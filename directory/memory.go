package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/google/uuid"
)

// Memory is an in-process user directory. Emails are matched case-insensitively.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]goSession.User
	byEmail map[string]string
}

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]goSession.User),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (goSession.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return goSession.User{}, false, nil
	}
	return m.byID[id], true, nil
}

func (m *Memory) FindByID(_ context.Context, id string) (goSession.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	return u, ok, nil
}

func (m *Memory) Exists(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byEmail[normalizeEmail(email)]
	return ok, nil
}

// Create inserts a user with a fresh UUID. The uniqueness check and insert
// happen under one write lock.
func (m *Memory) Create(_ context.Context, in goSession.CreateUserInput) (goSession.User, error) {
	key := normalizeEmail(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[key]; ok {
		return goSession.User{}, fmt.Errorf("directory: %s: %w", key, goSession.ErrDuplicateSubject)
	}

	u := goSession.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	return u, nil
}

// Delete removes the user with id. Missing ids are ignored.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	delete(m.byEmail, normalizeEmail(u.Email))
}

// Len returns the number of stored users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ goSession.UserDirectory = (*Memory)(nil)
