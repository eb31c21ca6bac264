package models

import (
	"time"
)

// Default daily goals for a new profile
const (
	DefaultCalorieGoal = 2500
	DefaultProteinGoal = 150
	DefaultCarbsGoal   = 300
	DefaultFatGoal     = 80
)

// LoggedEntry is one consumed food. Macros are scaled at write time and never re-derived.
type LoggedEntry struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	FoodName      string     `json:"food_name"`
	QuantityGrams int        `json:"quantity_grams"`
	Calories      int        `json:"calories"`
	Protein       int        `json:"protein"`
	Carbs         int        `json:"carbs"`
	Fat           int        `json:"fat"`
	Barcode       string     `json:"barcode,omitempty"`
	Source        SourceKind `json:"source,omitempty"`
	LoggedAt      time.Time  `json:"logged_at"`
}

// Macros returns the entry totals
func (e *LoggedEntry) Macros() Macros {
	return Macros{Calories: e.Calories, Protein: e.Protein, Carbs: e.Carbs, Fat: e.Fat}
}

// SavedMeal is a named aggregate a user can log again in one step
type SavedMeal struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	QuantityGrams int       `json:"quantity_grams"`
	Calories      int       `json:"calories"`
	Protein       int       `json:"protein"`
	Carbs         int       `json:"carbs"`
	Fat           int       `json:"fat"`
	CreatedAt     time.Time `json:"created_at"`
}

// Macros returns the meal totals
func (m *SavedMeal) Macros() Macros {
	return Macros{Calories: m.Calories, Protein: m.Protein, Carbs: m.Carbs, Fat: m.Fat}
}

// Goals are the daily targets of a user
type Goals struct {
	Calories int `json:"calories" validate:"gt=0,lte=20000"`
	Protein  int `json:"protein" validate:"gte=0,lte=2000"`
	Carbs    int `json:"carbs" validate:"gte=0,lte=2000"`
	Fat      int `json:"fat" validate:"gte=0,lte=2000"`
}

// DefaultGoals returns the goals assigned on first contact
func DefaultGoals() Goals {
	return Goals{
		Calories: DefaultCalorieGoal,
		Protein:  DefaultProteinGoal,
		Carbs:    DefaultCarbsGoal,
		Fat:      DefaultFatGoal,
	}
}

// UserProfile is created lazily on first interaction
type UserProfile struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Goals       Goals     `json:"goals"`
	CreatedAt   time.Time `json:"created_at"`
}

// DayTotals aggregates the entries of one logical day
type DayTotals struct {
	Macros
	EntryCount int `json:"entry_count"`
}

// FoodMatch is a provider answer: the product name and its per-100g values
type FoodMatch struct {
	Name  string         `json:"name"`
	Value NutritionValue `json:"value"`
}

// Candidate is one food proposed by the AI estimator
type Candidate struct {
	Name  string         `json:"name"`
	Grams int            `json:"grams"`
	Value NutritionValue `json:"value"`
}

// ResolvedFood is a candidate after provider enrichment
type ResolvedFood struct {
	Name  string         `json:"name"`
	Grams int            `json:"grams"`
	Value NutritionValue `json:"value"`
}

// FreeformInput is what a user sent when it was not a barcode
type FreeformInput struct {
	Text  string
	Image []byte
}
