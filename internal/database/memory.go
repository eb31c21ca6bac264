package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/google/uuid"
)

// MemoryDB is an in-process Store used by tests and the "memory" driver.
// It is safe for concurrent use.
type MemoryDB struct {
	mu      sync.RWMutex
	users   map[int64]models.UserProfile
	entries []models.LoggedEntry // insertion order
	meals   map[string]models.SavedMeal
}

// NewMemoryDB returns an empty store
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users: make(map[int64]models.UserProfile),
		meals: make(map[string]models.SavedMeal),
	}
}

func (m *MemoryDB) CreateUser(_ context.Context, user *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.UserID]; ok {
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.users[user.UserID] = *user
	return nil
}

func (m *MemoryDB) GetUser(_ context.Context, userID int64) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (m *MemoryDB) UpdateGoals(_ context.Context, userID int64, goals models.Goals) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Goals = goals
	m.users[userID] = user
	return nil
}

func (m *MemoryDB) InsertEntry(_ context.Context, entry *models.LoggedEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	m.entries = append(m.entries, *entry)
	return entry.ID, nil
}

func (m *MemoryDB) DeleteEntry(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].ID == entryID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryDB) QueryEntries(_ context.Context, userID int64, from, to time.Time) ([]*models.LoggedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.LoggedEntry
	for i := range m.entries {
		e := m.entries[i]
		if e.UserID != userID || e.LoggedAt.Before(from) || !e.LoggedAt.Before(to) {
			continue
		}
		results = append(results, &e)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LoggedAt.Before(results[j].LoggedAt)
	})
	return results, nil
}

func (m *MemoryDB) LastEntry(_ context.Context, userID int64) (*models.LoggedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *models.LoggedEntry
	for i := range m.entries {
		e := m.entries[i]
		if e.UserID != userID {
			continue
		}
		if last == nil || !e.LoggedAt.Before(last.LoggedAt) {
			last = &e
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

func (m *MemoryDB) InsertSavedMeal(_ context.Context, meal *models.SavedMeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.meals {
		if existing.UserID == meal.UserID && existing.Name == meal.Name {
			return ErrDuplicate
		}
	}
	if meal.ID == "" {
		meal.ID = uuid.New().String()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = time.Now()
	}
	m.meals[meal.ID] = *meal
	return nil
}

func (m *MemoryDB) GetSavedMeal(_ context.Context, userID int64, name string) (*models.SavedMeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, meal := range m.meals {
		if meal.UserID == userID && meal.Name == name {
			return &meal, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) ListSavedMeals(_ context.Context, userID int64) ([]*models.SavedMeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.SavedMeal
	for _, meal := range m.meals {
		meal := meal
		if meal.UserID == userID {
			results = append(results, &meal)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (m *MemoryDB) DeleteSavedMeal(_ context.Context, mealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.meals[mealID]; !ok {
		return ErrNotFound
	}
	delete(m.meals, mealID)
	return nil
}

// Close is a no-op
func (m *MemoryDB) Close() error { return nil }
