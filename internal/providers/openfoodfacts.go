// Package providers holds the HTTP clients of the nutrition databases the
// resolver consults.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
	"golang.org/x/time/rate"
)

// DefaultOFFBaseURL is the public Open Food Facts host
const DefaultOFFBaseURL = "https://world.openfoodfacts.org"

// OpenFoodFactsConfig configures the Open Food Facts client
type OpenFoodFactsConfig struct {
	BaseURL   string
	UserAgent string
	// ProductRPM and SearchRPM follow the published per-minute limits
	ProductRPM int
	SearchRPM  int
}

// OpenFoodFacts looks products up by barcode and searches them by name
type OpenFoodFacts struct {
	baseURL       string
	userAgent     string
	client        *http.Client
	productLimits *rate.Limiter
	searchLimits  *rate.Limiter
}

func NewOpenFoodFacts(cfg OpenFoodFactsConfig, client *http.Client) *OpenFoodFacts {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOFFBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "nutritionbot/1.0"
	}
	if cfg.ProductRPM <= 0 {
		cfg.ProductRPM = 100
	}
	if cfg.SearchRPM <= 0 {
		cfg.SearchRPM = 10
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &OpenFoodFacts{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:     cfg.UserAgent,
		client:        client,
		productLimits: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.ProductRPM)), 5),
		searchLimits:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.SearchRPM)), 2),
	}
}

// Name identifies the provider in logs and on name matches
func (o *OpenFoodFacts) Name() string { return models.ProviderOpenFoodFacts }

// offProduct is the subset of an Open Food Facts product we read
type offProduct struct {
	Code          string         `json:"code"`
	ProductName   string         `json:"product_name"`
	ProductNameEn string         `json:"product_name_en"`
	GenericName   string         `json:"generic_name"`
	Nutriments    map[string]any `json:"nutriments"`
}

// name returns the best available product name
func (p *offProduct) name() string {
	for _, n := range []string{p.ProductName, p.ProductNameEn, p.GenericName} {
		if strings.TrimSpace(n) != "" {
			return strings.TrimSpace(n)
		}
	}
	return ""
}

// value extracts per-100g macros. Energy falls back from kcal to kJ / 4.184.
func (p *offProduct) value() (models.NutritionValue, bool) {
	kcal, ok := extractFloat(p.Nutriments, "energy-kcal_100g")
	if !ok {
		if kj, kjOK := extractFloat(p.Nutriments, "energy-kj_100g"); kjOK {
			kcal, ok = kj/4.184, true
		} else if kj, kjOK := extractFloat(p.Nutriments, "energy_100g"); kjOK {
			kcal, ok = kj/4.184, true
		}
	}
	protein, pOK := extractFloat(p.Nutriments, "proteins_100g")
	carbs, cOK := extractFloat(p.Nutriments, "carbohydrates_100g")
	fat, fOK := extractFloat(p.Nutriments, "fat_100g")

	if !ok && !pOK && !cOK && !fOK {
		return models.NutritionValue{}, false
	}
	v, err := models.NewNutritionValue(kcal, protein, carbs, fat, "", models.ProviderOpenFoodFacts)
	if err != nil || v.IsEmpty() {
		return models.NutritionValue{}, false
	}
	return v, true
}

// LookupByCode fetches one product by barcode
func (o *OpenFoodFacts) LookupByCode(ctx context.Context, code string) (*models.FoodMatch, error) {
	if err := o.productLimits.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v2/product/%s.json?fields=code,product_name,product_name_en,generic_name,nutriments",
		o.baseURL, url.PathEscape(code))

	var body struct {
		Status  int        `json:"status"`
		Product offProduct `json:"product"`
	}
	found, err := o.getJSON(ctx, endpoint, &body)
	if err != nil {
		return nil, err
	}
	if !found || body.Status != 1 {
		return nil, apperror.NotFound("barcode %s unknown to open food facts", code)
	}

	value, ok := body.Product.value()
	if !ok {
		return nil, apperror.NotFound("barcode %s has no nutrition data", code)
	}
	name := body.Product.name()
	if name == "" {
		name = "Product " + code
	}
	return &models.FoodMatch{Name: name, Value: value}, nil
}

// LookupByName returns the first search hit that carries nutrition data
func (o *OpenFoodFacts) LookupByName(ctx context.Context, name string) (*models.FoodMatch, error) {
	if err := o.searchLimits.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("search_terms", name)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", "5")
	q.Set("fields", "code,product_name,product_name_en,generic_name,nutriments")
	endpoint := o.baseURL + "/cgi/search.pl?" + q.Encode()

	var body struct {
		Products []offProduct `json:"products"`
	}
	found, err := o.getJSON(ctx, endpoint, &body)
	if err != nil {
		return nil, err
	}
	if found {
		for i := range body.Products {
			if value, ok := body.Products[i].value(); ok {
				productName := body.Products[i].name()
				if productName == "" {
					productName = name
				}
				return &models.FoodMatch{Name: productName, Value: value}, nil
			}
		}
	}
	return nil, apperror.NotFound("no open food facts product for %q", name)
}

// getJSON decodes a 200 response into out. A 404 reports found=false;
// any other status is an error.
func (o *OpenFoodFacts) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", o.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("open food facts returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding open food facts response: %w", err)
	}
	return true, nil
}

// extractFloat coerces a nutriments value to float64
func extractFloat(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return 0, false
		}
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || f < 0 {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
