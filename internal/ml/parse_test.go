package ml

import (
	"testing"

	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidates(t *testing.T) {
	raw := "```json\n" + `{"foods":[
		{"name":"white rice","grams":200,"protein_g":5.4,"carbs_g":56,"fat_g":0.6},
		{"name":"chicken breast","grams":150,"protein_g":46.5,"carbs_g":0,"fat_g":5.4}
	]}` + "\n```"

	got, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "white rice", got[0].Name)
	assert.Equal(t, 200, got[0].Grams)
	assert.Equal(t, 2.7, got[0].Value.Protein)
	assert.Equal(t, 28.0, got[0].Value.Carbs)
	assert.Equal(t, 0.3, got[0].Value.Fat)
	assert.Equal(t, models.AtwaterCalories(2.7, 28, 0.3), got[0].Value.Calories)
	assert.Equal(t, models.SourceAIEstimate, got[0].Value.Source)
	assert.Equal(t, models.ProviderAI, got[0].Value.Provider)

	assert.Equal(t, "chicken breast", got[1].Name)
	assert.Equal(t, 31.0, got[1].Value.Protein)
}

func TestParseCandidates_Tolerant(t *testing.T) {
	got, err := parseCandidates(`Sure! Here it is: {"foods":[{"name":"apple","protein_g":0.3,"carbs_g":14,"fat_g":0.2}]} Enjoy.`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Grams, "unknown portion is left to the caller")
	assert.Equal(t, 14.0, got[0].Value.Carbs, "totals are read as per 100g when grams are missing")
}

func TestParseCandidates_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I cannot help with that"},
		{"model error", `{"foods":[],"error":"no food visible"}`},
		{"empty", `{"foods":[]}`},
		{"nameless", `{"foods":[{"name":" ","grams":10}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCandidates(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("two eggs and toast", true)
	assert.Contains(t, p, "attached photo")
	assert.Contains(t, p, "Meal: two eggs and toast")
	assert.NotContains(t, buildPrompt("", false), "Meal:")
}
