// Package ml estimates the foods and portions in free-form text or a meal
// photo using a generative model.
package ml

import (
	"context"
	"fmt"

	"github.com/franckalain/nutritionbot/internal/models"
)

// Estimator proposes candidate foods for a meal description or photo
type Estimator interface {
	// Load initializes the estimator with its configuration
	Load(ctx context.Context) error
	// Estimate returns the foods it recognises, in the order mentioned
	Estimate(ctx context.Context, text string, image []byte) ([]models.Candidate, error)
	Close() error
}

// EstimatorFactory creates a new estimator instance based on configuration
type EstimatorFactory interface {
	CreateEstimator() (Estimator, error)
}

// NewEstimator creates and loads the estimator named by cfg.Type
func NewEstimator(ctx context.Context, cfg Config) (Estimator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var factory EstimatorFactory
	switch cfg.Type {
	case TypeGoogle:
		factory = NewGoogleEstimatorFactory(cfg)
	case TypeGemini:
		factory = NewRESTEstimatorFactory(cfg, nil)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}

	est, err := factory.CreateEstimator()
	if err != nil {
		return nil, err
	}
	if err := est.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s estimator: %w", cfg.Type, err)
	}
	return est, nil
}
