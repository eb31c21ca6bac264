// Package resolver turns barcodes, food names and free-form input into
// per-100g nutrition values, falling back across providers and finally to
// the AI estimate.
package resolver

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidCode is returned for codes that are not 8 to 14 digits
var ErrInvalidCode = &apperror.Error{Kind: apperror.ErrInvalidInput, Message: "a barcode must have between 8 and 14 digits"}

var barcodePattern = regexp.MustCompile(`^\d{8,14}$`)

// IsBarcode reports whether s is shaped like an EAN/UPC code
func IsBarcode(s string) bool {
	return barcodePattern.MatchString(s)
}

// CodeProvider looks a product up by barcode. A miss is apperror.ErrNotFound.
type CodeProvider interface {
	LookupByCode(ctx context.Context, code string) (*models.FoodMatch, error)
}

// NameProvider looks a food up by name. A miss is apperror.ErrNotFound.
type NameProvider interface {
	Name() string
	LookupByName(ctx context.Context, name string) (*models.FoodMatch, error)
}

// Estimator proposes candidate foods for free-form input
type Estimator interface {
	Estimate(ctx context.Context, text string, image []byte) ([]models.Candidate, error)
}

// Config holds resolver timeouts
type Config struct {
	ProviderTimeout  time.Duration
	EstimatorTimeout time.Duration
	// Parallel bounds concurrent name lookups while enriching candidates
	Parallel int
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 8 * time.Second
	}
	if c.EstimatorTimeout <= 0 {
		c.EstimatorTimeout = 45 * time.Second
	}
	if c.Parallel <= 0 {
		c.Parallel = 4
	}
	return c
}

// Resolver tries its strategies in order
type Resolver struct {
	codes     CodeProvider
	names     []NameProvider
	estimator Estimator
	cfg       Config
	log       *zap.Logger
}

// New builds a Resolver. names are tried in the order given.
func New(codes CodeProvider, names []NameProvider, estimator Estimator, cfg Config, log *zap.Logger) *Resolver {
	return &Resolver{
		codes:     codes,
		names:     names,
		estimator: estimator,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// ResolveByCode performs exactly one barcode lookup
func (r *Resolver) ResolveByCode(ctx context.Context, code string) (*models.FoodMatch, error) {
	code = strings.TrimSpace(code)
	if !IsBarcode(code) {
		return nil, ErrInvalidCode
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	match, err := r.codes.LookupByCode(callCtx, code)
	if err != nil {
		r.observe("barcode", code, err)
		return nil, apperror.NotFound("no product found for barcode %s", code)
	}
	match.Value = match.Value.WithSource(models.SourceExactBarcode, match.Value.Provider)
	return match, nil
}

// ResolveByName asks each name provider in turn. A failing provider never
// stops the next one from being asked.
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*models.FoodMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.InvalidInput("the food name cannot be empty")
	}

	for _, p := range r.names {
		match, err := r.tryName(ctx, p, name)
		if err != nil {
			r.observe(p.Name(), name, err)
			continue
		}
		match.Value = match.Value.WithSource(models.SourceNameMatch, p.Name())
		return match, nil
	}
	return nil, apperror.NotFound("no nutrition data found for %q", name)
}

func (r *Resolver) tryName(ctx context.Context, p NameProvider, name string) (*models.FoodMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()
	return p.LookupByName(callCtx, name)
}

// ResolveCandidates estimates the foods in input and enriches each one by
// name. Candidates keep the estimator's order and are never dropped: a
// candidate no provider knows keeps its AI values tagged ai_estimate.
func (r *Resolver) ResolveCandidates(ctx context.Context, input models.FreeformInput) ([]models.ResolvedFood, error) {
	estCtx, cancel := context.WithTimeout(ctx, r.cfg.EstimatorTimeout)
	candidates, err := r.estimator.Estimate(estCtx, input.Text, input.Image)
	cancel()
	if err != nil {
		r.log.Warn("estimator failed", zap.Error(err))
		return nil, apperror.EstimationFailed(err)
	}
	if len(candidates) == 0 {
		return nil, apperror.EstimationFailed(errors.New("no foods identified"))
	}

	resolved := make([]models.ResolvedFood, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallel)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			resolved[i] = r.enrich(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return resolved, nil
}

func (r *Resolver) enrich(ctx context.Context, c models.Candidate) models.ResolvedFood {
	grams := c.Grams
	if grams <= 0 {
		grams = 100
	}

	match, err := r.ResolveByName(ctx, c.Name)
	if err == nil {
		return models.ResolvedFood{Name: c.Name, Grams: grams, Value: match.Value.WithAtwaterCheck()}
	}

	value := c.Value.WithSource(models.SourceAIEstimate, models.ProviderAI).WithAtwaterCheck()
	return models.ResolvedFood{Name: c.Name, Grams: grams, Value: value}
}

// observe logs a provider miss or failure. Failures are recorded as
// transient but callers only ever see NotFound.
func (r *Resolver) observe(provider, query string, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		r.log.Debug("provider miss", zap.String("provider", provider), zap.String("query", query))
		return
	}
	r.log.Warn("provider failed",
		zap.String("provider", provider),
		zap.String("query", query),
		zap.Error(apperror.Transient(provider, err)),
	)
}
