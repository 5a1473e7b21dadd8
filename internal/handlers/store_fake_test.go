package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"YOGA_TRAINER/posecoach/internal/database"
	"YOGA_TRAINER/posecoach/internal/models"
)

// memStore is an in-memory AccountStore and ActivityStore.
type memStore struct {
	mu       sync.Mutex
	users    []models.User
	logs     map[int][]models.PoseLogEntry
	sessions map[int][]models.YogaSession
	failLog  bool
}

func newMemStore() *memStore {
	return &memStore{
		logs:     make(map[int][]models.PoseLogEntry),
		sessions: make(map[int][]models.YogaSession),
	}
}

func (m *memStore) CreateUser(_ context.Context, email, username, hash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return models.User{}, fmt.Errorf("email: %w", database.ErrDuplicate)
		}
		if u.Username == username {
			return models.User{}, fmt.Errorf("username: %w", database.ErrDuplicate)
		}
	}
	u := models.User{ID: len(m.users) + 1, Email: email, Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.users = append(m.users, u)
	return u, nil
}

func (m *memStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = ""
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (m *memStore) LogActivity(_ context.Context, userID int, e models.PoseLogEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLog {
		return 0, fmt.Errorf("disk full")
	}
	m.logs[userID] = append(m.logs[userID], e)
	return int64(len(m.logs[userID])), nil
}

func (m *memStore) UserStats(_ context.Context, userID, days int, _ time.Time) (models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.logs[userID])
	return models.UserStats{TotalAsanas: n, PeriodDays: days, UserLevel: database.UserLevel(n)}, nil
}

func (m *memStore) Leaderboard(_ context.Context, current, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LeaderboardEntry
	for _, u := range m.users {
		out = append(out, models.LeaderboardEntry{
			UserID: u.ID, Username: u.Username, TotalAsanas: len(m.logs[u.ID]), IsCurrentUser: u.ID == current,
		})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Sessions(_ context.Context, userID, _ int) ([]models.YogaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.YogaSession{}, m.sessions[userID]...), nil
}

func (m *memStore) DeleteSession(_ context.Context, userID int, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions[userID] {
		if s.ID == id {
			m.sessions[userID] = append(m.sessions[userID][:i], m.sessions[userID][i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}
