package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/models"
)

// RESTEstimator calls the Gemini generateContent endpoint with an API key
type RESTEstimator struct {
	config Config
	client *http.Client
}

// RESTEstimatorFactory implements EstimatorFactory for the Gemini REST API
type RESTEstimatorFactory struct {
	config Config
	client *http.Client
}

// NewRESTEstimatorFactory creates a factory. A nil client gets a 60s timeout.
func NewRESTEstimatorFactory(config Config, client *http.Client) *RESTEstimatorFactory {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RESTEstimatorFactory{config: config.withDefaults(), client: client}
}

func (f *RESTEstimatorFactory) CreateEstimator() (Estimator, error) {
	return &RESTEstimator{config: f.config, client: f.client}, nil
}

func (m *RESTEstimator) Load(context.Context) error {
	if m.config.APIKey == "" {
		return errors.New("missing GEMINI_API_KEY")
	}
	return nil
}

type restPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (m *RESTEstimator) Estimate(ctx context.Context, text string, image []byte) ([]models.Candidate, error) {
	parts := []restPart{{Text: buildPrompt(text, len(image) > 0)}}
	if len(image) > 0 {
		parts = append(parts, restPart{InlineData: &inlineData{
			MimeType: http.DetectContentType(image),
			Data:     base64.StdEncoding.EncodeToString(image),
		}})
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
		"generationConfig": map[string]any{
			"temperature":      0.1,
			"maxOutputTokens":  2048,
			"responseMimeType": "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(m.config.Endpoint, "/"), m.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	// the key stays out of the URL, which net/http echoes into transport errors
	req.Header.Set("x-goog-api-key", m.config.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini api error: status %d", resp.StatusCode)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("empty gemini response")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return parseCandidates(sb.String())
}

func (m *RESTEstimator) Close() error { return nil }
