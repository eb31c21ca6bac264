package ml

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/franckalain/nutritionbot/internal/models"
	"google.golang.org/api/option"
)

// GoogleEstimator estimates meals through Vertex AI
type GoogleEstimator struct {
	config Config
	client *genai.Client
	model  *genai.GenerativeModel
}

// GoogleEstimatorFactory implements EstimatorFactory for Vertex AI
type GoogleEstimatorFactory struct {
	config Config
}

func NewGoogleEstimatorFactory(config Config) *GoogleEstimatorFactory {
	return &GoogleEstimatorFactory{config: config}
}

func (f *GoogleEstimatorFactory) CreateEstimator() (Estimator, error) {
	return &GoogleEstimator{config: f.config}, nil
}

// Load initializes the Vertex client
func (m *GoogleEstimator) Load(ctx context.Context) error {
	opts := []option.ClientOption{}
	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = client.GenerativeModel(m.config.Model)
	m.model.SetTemperature(0.1)
	m.model.ResponseMIMEType = "application/json"
	return nil
}

// Estimate sends the prompt, the text and the optional photo to the model
func (m *GoogleEstimator) Estimate(ctx context.Context, text string, image []byte) ([]models.Candidate, error) {
	if m.model == nil {
		return nil, fmt.Errorf("model not loaded")
	}

	parts := []genai.Part{genai.Text(buildPrompt(text, len(image) > 0))}
	if len(image) > 0 {
		parts = append(parts, genai.Blob{MIMEType: http.DetectContentType(image), Data: image})
	}

	resp, err := m.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to call ai: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response generated")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no content in response")
	}
	return parseCandidates(sb.String())
}

func (m *GoogleEstimator) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
