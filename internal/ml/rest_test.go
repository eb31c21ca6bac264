package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTEstimator_Estimate(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	var gotParts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotQuery = r.URL.RawQuery

		var body struct {
			Contents []struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotParts = len(body.Contents[0].Parts)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"foods\":[{\"name\":\"banana\",\"grams\":120,\"protein_g\":1.3,\"carbs_g\":27.6,\"fat_g\":0.4}]}"}]}}]}`))
	}))
	defer srv.Close()

	est, err := NewRESTEstimatorFactory(Config{Type: TypeGemini, APIKey: "k", Model: "m", Endpoint: srv.URL}, srv.Client()).CreateEstimator()
	require.NoError(t, err)
	require.NoError(t, est.Load(context.Background()))

	got, err := est.Estimate(context.Background(), "a banana", []byte{0xff, 0xd8, 0xff, 0xe0})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "banana", got[0].Name)
	assert.Equal(t, 120, got[0].Grams)
	assert.Equal(t, "/models/m:generateContent", gotPath)
	assert.Equal(t, "k", gotKey)
	assert.Empty(t, gotQuery)
	assert.Equal(t, 2, gotParts, "prompt and inline image")
}

func TestRESTEstimator_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	est, err := NewRESTEstimatorFactory(Config{APIKey: "k", Endpoint: srv.URL}, srv.Client()).CreateEstimator()
	require.NoError(t, err)
	_, err = est.Estimate(context.Background(), "soup", nil)
	assert.Error(t, err)

	noKey, err := NewRESTEstimatorFactory(Config{}, nil).CreateEstimator()
	require.NoError(t, err)
	assert.Error(t, noKey.Load(context.Background()))
}

func TestRESTEstimator_TransportErrorsHideKey(t *testing.T) {
	const key = "AIza-secret-key"

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	for name, endpoint := range map[string]string{"timeout": slow.URL, "refused": closedURL} {
		t.Run(name, func(t *testing.T) {
			est, err := NewRESTEstimatorFactory(Config{APIKey: key, Endpoint: endpoint}, &http.Client{}).CreateEstimator()
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = est.Estimate(ctx, "soup", nil)
			require.Error(t, err)
			assert.NotContains(t, err.Error(), key)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Type: TypeGoogle, ProjectID: "p"}.Validate())
	assert.Error(t, Config{Type: TypeGoogle}.Validate())
	assert.NoError(t, Config{Type: TypeGemini, APIKey: "k"}.Validate())
	assert.Error(t, Config{Type: "local"}.Validate())

	_, err := NewEstimator(context.Background(), Config{Type: TypeGemini})
	assert.Error(t, err)
}
