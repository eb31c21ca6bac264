package database

import (
	"context"
	"errors"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = apperror.ErrNotFound

// ErrDuplicate is returned when a saved meal name is already taken by the user
var ErrDuplicate = errors.New("duplicate saved meal name")

// UserStore persists user profiles
type UserStore interface {
	// CreateUser inserts the profile; an existing profile is left untouched
	CreateUser(ctx context.Context, user *models.UserProfile) error
	GetUser(ctx context.Context, userID int64) (*models.UserProfile, error)
	UpdateGoals(ctx context.Context, userID int64, goals models.Goals) error
}

// EntryStore persists logged entries
type EntryStore interface {
	InsertEntry(ctx context.Context, entry *models.LoggedEntry) (string, error)
	DeleteEntry(ctx context.Context, entryID string) error
	// QueryEntries returns entries with from <= logged_at < to, oldest first
	QueryEntries(ctx context.Context, userID int64, from, to time.Time) ([]*models.LoggedEntry, error)
	// LastEntry returns the entry with the greatest logged_at; later inserts win ties
	LastEntry(ctx context.Context, userID int64) (*models.LoggedEntry, error)
}

// MealStore persists saved meals
type MealStore interface {
	// InsertSavedMeal fails with ErrDuplicate when the name is taken
	InsertSavedMeal(ctx context.Context, meal *models.SavedMeal) error
	GetSavedMeal(ctx context.Context, userID int64, name string) (*models.SavedMeal, error)
	ListSavedMeals(ctx context.Context, userID int64) ([]*models.SavedMeal, error)
	DeleteSavedMeal(ctx context.Context, mealID string) error
}

// Store is the full persistence collaborator
type Store interface {
	UserStore
	EntryStore
	MealStore
	Close() error
}
