package models

import (
	"fmt"
	"math"

	"github.com/franckalain/nutritionbot/internal/apperror"
)

// SourceKind tells where a NutritionValue came from
type SourceKind string

const (
	SourceExactBarcode SourceKind = "exact_barcode"
	SourceNameMatch    SourceKind = "name_match"
	SourceAIEstimate   SourceKind = "ai_estimate"
)

// Providers that may answer a lookup
const (
	ProviderOpenFoodFacts = "open_food_facts"
	ProviderUSDA          = "usda"
	ProviderAI            = "ai"
)

// ErrInvalidQuantity is returned when a non-positive quantity is scaled
var ErrInvalidQuantity = &apperror.Error{Kind: apperror.ErrInvalidInput, Message: "quantity must be a positive number of grams"}

// NutritionValue holds macros per 100g. It is passed by value and never mutated
// after construction.
type NutritionValue struct {
	Calories float64    `json:"calories"` // kcal
	Protein  float64    `json:"protein"`  // grams
	Carbs    float64    `json:"carbs"`    // grams
	Fat      float64    `json:"fat"`      // grams
	Source   SourceKind `json:"source"`
	Provider string     `json:"provider,omitempty"`
}

// NewNutritionValue validates the per-100g macros
func NewNutritionValue(calories, protein, carbs, fat float64, source SourceKind, provider string) (NutritionValue, error) {
	for _, v := range []float64{calories, protein, carbs, fat} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return NutritionValue{}, fmt.Errorf("invalid macro value %v", v)
		}
	}
	return NutritionValue{
		Calories: calories,
		Protein:  protein,
		Carbs:    carbs,
		Fat:      fat,
		Source:   source,
		Provider: provider,
	}, nil
}

// Macros are consumed totals, rounded to whole kcal and grams
type Macros struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

// Add returns the field-wise sum
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

// Scale converts per-100g values to the consumed quantity. Each field is
// rounded on its own, ties to even.
func (v NutritionValue) Scale(grams int) (Macros, error) {
	if grams <= 0 {
		return Macros{}, ErrInvalidQuantity
	}
	g := float64(grams)
	return Macros{
		Calories: roundField(v.Calories, g),
		Protein:  roundField(v.Protein, g),
		Carbs:    roundField(v.Carbs, g),
		Fat:      roundField(v.Fat, g),
	}, nil
}

func roundField(per100, grams float64) int {
	return int(math.RoundToEven(per100 * grams / 100))
}

// WithSource returns a copy tagged with another source
func (v NutritionValue) WithSource(source SourceKind, provider string) NutritionValue {
	v.Source = source
	v.Provider = provider
	return v
}

// AtwaterCalories is 4 kcal/g protein, 4 kcal/g carbs, 9 kcal/g fat
func AtwaterCalories(protein, carbs, fat float64) float64 {
	return math.Round((protein*4+carbs*4+fat*9)*10) / 10
}

// atwaterTolerance is the relative deviation above which reported calories are replaced
const atwaterTolerance = 0.20

// WithAtwaterCheck returns a copy whose calories follow Atwater when the
// reported figure deviates by more than 20%.
func (v NutritionValue) WithAtwaterCheck() NutritionValue {
	atwater := AtwaterCalories(v.Protein, v.Carbs, v.Fat)
	if atwater == 0 {
		return v
	}
	if math.Abs(v.Calories-atwater)/atwater > atwaterTolerance {
		v.Calories = atwater
	}
	return v
}

// IsEmpty reports whether every macro is zero
func (v NutritionValue) IsEmpty() bool {
	return v.Calories == 0 && v.Protein == 0 && v.Carbs == 0 && v.Fat == 0
}

