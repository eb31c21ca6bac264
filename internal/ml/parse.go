package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/franckalain/nutritionbot/internal/models"
)

const estimatePrompt = `You are a nutrition assistant. Identify every food or drink in the meal below%s.
For each one estimate the portion in grams and the protein, carbohydrate and fat
contained in that whole portion.

Answer with JSON only, with exactly one of "foods" or "error" populated:
{
	"foods": [
		{"name": "string", "grams": number, "protein_g": number, "carbs_g": number, "fat_g": number}
	],
	"error": "string"
}
List the foods in the order they are mentioned. Use short, generic English names
that a food database would recognise. If nothing edible can be identified, set "error".`

// buildPrompt returns the instruction text sent alongside the user input
func buildPrompt(text string, hasImage bool) string {
	where := ""
	if hasImage {
		where = " and in the attached photo"
	}
	p := fmt.Sprintf(estimatePrompt, where)
	if strings.TrimSpace(text) != "" {
		p += "\n\nMeal: " + strings.TrimSpace(text)
	}
	return p
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

type estimateOutput struct {
	Foods []struct {
		Name    string  `json:"name"`
		Grams   float64 `json:"grams"`
		Protein float64 `json:"protein_g"`
		Carbs   float64 `json:"carbs_g"`
		Fat     float64 `json:"fat_g"`
	} `json:"foods"`
	Error string `json:"error"`
}

// stripFences removes a surrounding ```json fence
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseCandidates reads the model answer. Portion totals become per-100g
// values, with calories always derived from the macros.
func parseCandidates(raw string) ([]models.Candidate, error) {
	text := stripFences(raw)

	var out estimateOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		obj := jsonObject.FindString(text)
		if obj == "" {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		if err := json.Unmarshal([]byte(obj), &out); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w while parsing %s", err, obj)
		}
	}

	if len(out.Foods) == 0 {
		if out.Error != "" {
			return nil, errors.New(out.Error)
		}
		return nil, errors.New("no foods in model response")
	}

	candidates := make([]models.Candidate, 0, len(out.Foods))
	for _, f := range out.Foods {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		grams := int(math.Round(f.Grams))
		if grams < 0 {
			grams = 0
		}
		basis := float64(grams)
		if basis == 0 {
			basis = 100
		}
		protein := per100(f.Protein, basis)
		carbs := per100(f.Carbs, basis)
		fat := per100(f.Fat, basis)

		value, err := models.NewNutritionValue(models.AtwaterCalories(protein, carbs, fat), protein, carbs, fat,
			models.SourceAIEstimate, models.ProviderAI)
		if err != nil {
			continue
		}
		candidates = append(candidates, models.Candidate{Name: name, Grams: grams, Value: value})
	}
	if len(candidates) == 0 {
		return nil, errors.New("no usable foods in model response")
	}
	return candidates, nil
}

// per100 converts a portion total to per-100g, rounded to 0.1
func per100(total, grams float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(total*100/grams*10) / 10
}
