package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/cma2819/relaying-raids/db"
)

// MemUserStore is an in-memory auth.UserStore for tests.
type MemUserStore struct {
	mu    sync.Mutex
	users map[string]*db.User

	// UpsertErr, when set, is returned by Upsert to simulate a persist failure.
	UpsertErr error
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: make(map[string]*db.User)}
}

func (m *MemUserStore) Upsert(_ context.Context, u *db.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	cp := *u
	m.users[u.TwitchID] = &cp
	return nil
}

func (m *MemUserStore) Get(_ context.Context, twitchID string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[twitchID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetByLogin mirrors db.GetUserByLogin for handler tests.
func (m *MemUserStore) GetByLogin(_ context.Context, login string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Login, login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}
