package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tyrowin/relaychat/internal/model"
)

// Memory is an in-memory Directory used by tests. It applies the same
// uniqueness rules as the SQLite implementation.
type Memory struct {
	mu       sync.Mutex
	users    []model.User
	hashes   map[int64]string
	groups   []model.Group
	messages []model.Message
	nextUser int64
	nextGrp  int64
	nextMsg  int64

	// FailNext makes the next mutating call fail, for exercising
	// store-unavailable paths.
	FailNext bool
}

var _ Directory = (*Memory)(nil)

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		hashes:   make(map[int64]string),
		nextUser: 1,
		nextGrp:  1,
		nextMsg:  1,
	}
}

func (m *Memory) failNext() error {
	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("store: injected failure")
	}
	return nil
}

func (m *Memory) FindUserByUsername(_ context.Context, username string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return &Credential{User: u, PasswordHash: m.hashes[u.ID]}, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) InsertUser(_ context.Context, u NewUser) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return nil, err
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return nil, fmt.Errorf("store: insert user %q: %w", u.Username, ErrDuplicate)
		}
	}
	user := model.User{ID: m.nextUser, Username: u.Username, ColorTag: u.ColorTag, IsAdmin: u.IsAdmin}
	m.nextUser++
	m.users = append(m.users, user)
	m.hashes[user.ID] = u.PasswordHash
	return &user, nil
}

func (m *Memory) InsertGroup(_ context.Context, name, colorTag string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return nil, err
	}
	for _, existing := range m.groups {
		if existing.Name == name {
			return nil, fmt.Errorf("store: insert group %q: %w", name, ErrDuplicate)
		}
	}
	group := model.Group{ID: m.nextGrp, Name: name, ColorTag: colorTag}
	m.nextGrp++
	m.groups = append(m.groups, group)
	return &group, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.User(nil), m.users...), nil
}

func (m *Memory) ListGroups(_ context.Context) ([]model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Group(nil), m.groups...), nil
}

func (m *Memory) InsertMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return err
	}
	msg.ID = m.nextMsg
	m.nextMsg++
	m.messages = append(m.messages, *msg)
	return nil
}

// Messages returns a snapshot of everything persisted so far.
func (m *Memory) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages...)
}

func (m *Memory) Close() error {
	return nil
}
