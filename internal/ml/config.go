package ml

import "fmt"

// Estimator backends
const (
	TypeGoogle = "google" // Vertex AI with service credentials
	TypeGemini = "gemini" // Gemini REST API with an API key
)

const (
	DefaultModel          = "gemini-1.5-flash"
	DefaultLocation       = "us-central1"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// Config holds configuration for every estimator backend
type Config struct {
	Type            string `json:"type" validate:"omitempty,oneof=google gemini"`
	ProjectID       string `json:"project_id"`
	Location        string `json:"location"`
	CredentialsFile string `json:"credentials_file"`
	Model           string `json:"model"`
	APIKey          string `json:"api_key"`
	Endpoint        string `json:"endpoint"`
}

func (c Config) withDefaults() Config {
	if c.Type == "" {
		c.Type = TypeGemini
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultGeminiEndpoint
	}
	return c
}

// Validate checks the fields the selected backend needs
func (c Config) Validate() error {
	switch c.Type {
	case TypeGoogle:
		if c.ProjectID == "" {
			return fmt.Errorf("google estimator needs GOOGLE_PROJECT_ID")
		}
	case TypeGemini:
		if c.APIKey == "" {
			return fmt.Errorf("gemini estimator needs GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unsupported model type: %s", c.Type)
	}
	return nil
}
