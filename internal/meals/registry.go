// Package meals manages named meals a user can log again in one step.
package meals

import (
	"context"
	"errors"
	"strings"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/database"
	"github.com/franckalain/nutritionbot/internal/models"
	"go.uber.org/zap"
)

// DefaultGrams is used when a saved meal carries no quantity
const DefaultGrams = 100

// EntryLogger logs a prepared entry; the ledger implements it
type EntryLogger interface {
	Log(ctx context.Context, entry models.LoggedEntry) (*models.LoggedEntry, error)
}

// Registry stores saved meals and logs them on request
type Registry struct {
	store  database.MealStore
	ledger EntryLogger
	log    *zap.Logger
}

func NewRegistry(store database.MealStore, ledger EntryLogger, log *zap.Logger) *Registry {
	return &Registry{store: store, ledger: ledger, log: log}
}

// Save registers totals under name. A name already used by the user is
// rejected and the existing meal is left as it was.
func (r *Registry) Save(ctx context.Context, userID int64, name string, totals models.Macros, grams int) (*models.SavedMeal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.InvalidInput("the meal name cannot be empty")
	}

	meal := &models.SavedMeal{
		UserID:        userID,
		Name:          name,
		QuantityGrams: grams,
		Calories:      totals.Calories,
		Protein:       totals.Protein,
		Carbs:         totals.Carbs,
		Fat:           totals.Fat,
	}
	err := r.store.InsertSavedMeal(ctx, meal)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apperror.InvalidInput("a meal called %q already exists, pick another name", name)
	}
	if err != nil {
		return nil, apperror.Persistence("insert saved meal", err)
	}
	r.log.Debug("meal saved", zap.Int64("user_id", userID), zap.String("meal", name))
	return meal, nil
}

// Get returns a saved meal by name
func (r *Registry) Get(ctx context.Context, userID int64, name string) (*models.SavedMeal, error) {
	name = strings.TrimSpace(name)
	meal, err := r.store.GetSavedMeal(ctx, userID, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("there is no meal called %q", name)
	}
	if err != nil {
		return nil, apperror.Persistence("get saved meal", err)
	}
	return meal, nil
}

// Eat logs a saved meal as a new entry with its stored totals
func (r *Registry) Eat(ctx context.Context, userID int64, name string) (*models.LoggedEntry, *models.SavedMeal, error) {
	meal, err := r.Get(ctx, userID, name)
	if err != nil {
		return nil, nil, err
	}

	grams := meal.QuantityGrams
	if grams <= 0 {
		grams = DefaultGrams
	}
	entry, err := r.ledger.Log(ctx, models.LoggedEntry{
		UserID:        userID,
		FoodName:      "Meal: " + meal.Name,
		QuantityGrams: grams,
		Calories:      meal.Calories,
		Protein:       meal.Protein,
		Carbs:         meal.Carbs,
		Fat:           meal.Fat,
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, meal, nil
}

// List returns the user's meals ordered by name
func (r *Registry) List(ctx context.Context, userID int64) ([]*models.SavedMeal, error) {
	list, err := r.store.ListSavedMeals(ctx, userID)
	if err != nil {
		return nil, apperror.Persistence("list saved meals", err)
	}
	return list, nil
}

// Delete removes a saved meal by name
func (r *Registry) Delete(ctx context.Context, userID int64, name string) (*models.SavedMeal, error) {
	meal, err := r.Get(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if err := r.store.DeleteSavedMeal(ctx, meal.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.NotFound("there is no meal called %q", meal.Name)
		}
		return nil, apperror.Persistence("delete saved meal", err)
	}
	return meal, nil
}
