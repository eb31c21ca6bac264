package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
)

// DefaultUSDAEndpoint is the FoodData Central search endpoint
const DefaultUSDAEndpoint = "https://api.nal.usda.gov/fdc/v1/foods/search"

// FoodData Central nutrient numbers
const (
	nutrientEnergyKcal = "208"
	nutrientProtein    = "203"
	nutrientFat        = "204"
	nutrientCarbs      = "205"
)

// USDA searches FoodData Central by name
type USDA struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewUSDA creates a client. An empty apiKey uses the public DEMO_KEY.
func NewUSDA(endpoint, apiKey string, client *http.Client) *USDA {
	if endpoint == "" {
		endpoint = DefaultUSDAEndpoint
	}
	if apiKey == "" {
		apiKey = "DEMO_KEY"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &USDA{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (u *USDA) Name() string { return models.ProviderUSDA }

type usdaNutrient struct {
	NutrientName   string  `json:"nutrientName"`
	NutrientNumber string  `json:"nutrientNumber"`
	UnitName       string  `json:"unitName"`
	Value          float64 `json:"value"`
}

type usdaFood struct {
	FdcID         int            `json:"fdcId"`
	Description   string         `json:"description"`
	FoodNutrients []usdaNutrient `json:"foodNutrients"`
}

// value reads per-100g macros from a search hit
func (f *usdaFood) value() (models.NutritionValue, bool) {
	var kcal, protein, carbs, fat float64
	var seen bool
	for _, n := range f.FoodNutrients {
		switch {
		case n.NutrientNumber == nutrientEnergyKcal,
			strings.EqualFold(n.UnitName, "KCAL") && strings.HasPrefix(strings.ToLower(n.NutrientName), "energy"):
			kcal, seen = n.Value, true
		case n.NutrientNumber == nutrientProtein:
			protein, seen = n.Value, true
		case n.NutrientNumber == nutrientCarbs:
			carbs, seen = n.Value, true
		case n.NutrientNumber == nutrientFat:
			fat, seen = n.Value, true
		}
	}
	if !seen {
		return models.NutritionValue{}, false
	}
	v, err := models.NewNutritionValue(kcal, protein, carbs, fat, "", models.ProviderUSDA)
	if err != nil || (v.Calories == 0 && v.Protein == 0) {
		return models.NutritionValue{}, false
	}
	return v, true
}

// LookupByName returns the first search hit with energy or protein data
func (u *USDA) LookupByName(ctx context.Context, name string) (*models.FoodMatch, error) {
	q := url.Values{}
	q.Set("query", name)
	q.Set("pageSize", "3")
	q.Set("dataType", "Foundation,SR Legacy,Survey (FNDDS)")
	q.Set("api_key", u.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usda returned status %d", resp.StatusCode)
	}

	var body struct {
		Foods []usdaFood `json:"foods"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding usda response: %w", err)
	}

	for i := range body.Foods {
		if value, ok := body.Foods[i].value(); ok {
			return &models.FoodMatch{Name: titleCase(body.Foods[i].Description), Value: value}, nil
		}
	}
	return nil, apperror.NotFound("no usda food for %q", name)
}

// titleCase turns "RICE, WHITE, COOKED" into "Rice, White, Cooked"
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
