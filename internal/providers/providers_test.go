package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOFFServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/product/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/product/8431890069843.json":
			_, _ = w.Write([]byte(`{"status":1,"product":{"code":"8431890069843","product_name":"Skyr natural",
				"nutriments":{"energy-kcal_100g":59,"proteins_100g":10,"carbohydrates_100g":"3","fat_100g":0.5}}}`))
		case "/api/v2/product/5000000000001.json":
			_, _ = w.Write([]byte(`{"status":1,"product":{"product_name":"",
				"nutriments":{"energy-kj_100g":418.4,"proteins_100g":1}}}`))
		case "/api/v2/product/5000000000002.json":
			_, _ = w.Write([]byte(`{"status":1,"product":{"product_name":"Water","nutriments":{}}}`))
		case "/api/v2/product/5000000000003.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":0,"status_verbose":"product not found"}`))
		}
	})
	mux.HandleFunc("/cgi/search.pl", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("search_terms") != "oats" {
			_, _ = w.Write([]byte(`{"count":0,"products":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"count":2,"products":[
			{"product_name":"Oats without data","nutriments":{}},
			{"product_name":"Rolled oats","nutriments":{"energy-kcal_100g":379,"proteins_100g":13.2,"carbohydrates_100g":67.7,"fat_100g":6.5}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOFF(srv *httptest.Server) *OpenFoodFacts {
	return NewOpenFoodFacts(OpenFoodFactsConfig{BaseURL: srv.URL, UserAgent: "test-agent", ProductRPM: 6000, SearchRPM: 6000}, srv.Client())
}

func TestOpenFoodFacts_LookupByCode(t *testing.T) {
	off := newOFF(newOFFServer(t))
	ctx := context.Background()

	m, err := off.LookupByCode(ctx, "8431890069843")
	require.NoError(t, err)
	assert.Equal(t, "Skyr natural", m.Name)
	assert.Equal(t, 59.0, m.Value.Calories)
	assert.Equal(t, 3.0, m.Value.Carbs)
	assert.Equal(t, models.ProviderOpenFoodFacts, m.Value.Provider)

	m, err = off.LookupByCode(ctx, "5000000000001")
	require.NoError(t, err)
	assert.Equal(t, "Product 5000000000001", m.Name)
	assert.InDelta(t, 100.0, m.Value.Calories, 0.01, "kJ converts to kcal")

	_, err = off.LookupByCode(ctx, "5000000000002")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = off.LookupByCode(ctx, "12345678")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = off.LookupByCode(ctx, "5000000000003")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
}

func TestOpenFoodFacts_LookupByName(t *testing.T) {
	off := newOFF(newOFFServer(t))
	ctx := context.Background()

	m, err := off.LookupByName(ctx, "oats")
	require.NoError(t, err)
	assert.Equal(t, "Rolled oats", m.Name)
	assert.Equal(t, 13.2, m.Value.Protein)

	_, err = off.LookupByName(ctx, "unobtainium")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, models.ProviderOpenFoodFacts, off.Name())
}

func TestUSDA_LookupByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		switch r.URL.Query().Get("query") {
		case "rice":
			_, _ = w.Write([]byte(`{"foods":[{"fdcId":1,"description":"RICE, WHITE, COOKED","foodNutrients":[
				{"nutrientNumber":"208","unitName":"KCAL","value":130},
				{"nutrientNumber":"203","unitName":"G","value":2.7},
				{"nutrientNumber":"205","unitName":"G","value":28.2},
				{"nutrientNumber":"204","unitName":"G","value":0.3}]}]}`))
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"foods":[]}`))
		}
	}))
	defer srv.Close()

	u := NewUSDA(srv.URL, "secret", srv.Client())
	ctx := context.Background()

	m, err := u.LookupByName(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, "Rice, White, Cooked", m.Name)
	assert.Equal(t, 130.0, m.Value.Calories)
	assert.Equal(t, 28.2, m.Value.Carbs)
	assert.Equal(t, models.ProviderUSDA, m.Value.Provider)

	_, err = u.LookupByName(ctx, "nothing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = u.LookupByName(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
}
