package router

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrUnknownModel is returned when a logical name is not in the registry
	ErrUnknownModel = errors.New("unknown model")

	// ErrMissingCredential is returned when the provider key is not set
	ErrMissingCredential = errors.New("missing credential")
)

// Target is a resolved model together with the credential to call it
type Target struct {
	Model      Model
	Credential string
}

// ProviderID returns the concrete provider identifier of the target
func (t *Target) ProviderID() string {
	return t.Model.ProviderID()
}

// EnvLookup reads a variable from the execution environment
type EnvLookup func(key string) (string, bool)

// Option configures a Router
type Option func(*Router)

// WithEnvLookup replaces the environment used to find credentials
func WithEnvLookup(lookup EnvLookup) Option {
	return func(r *Router) {
		r.lookupEnv = lookup
	}
}

// Router resolves logical model names
type Router struct {
	registry  *Registry
	lookupEnv EnvLookup
	logger    *zap.Logger
}

// NewRouter creates a new router over a registry
func NewRouter(registry *Registry, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		registry:  registry,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the router resolves against
func (r *Router) Registry() *Registry {
	return r.registry
}

// Resolve maps a logical model name to a provider target
func (r *Router) Resolve(name string) (*Target, error) {
	model, ok := r.registry.Lookup(name)
	if !ok {
		r.logger.Debug("model not in registry", zap.String("model", name))
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownModel, name, strings.Join(r.registry.Names(), ", "))
	}

	credential, ok := r.lookupEnv(model.CredentialEnv)
	if !ok || strings.TrimSpace(credential) == "" {
		r.logger.Warn("credential not set for model",
			zap.String("model", model.Name),
			zap.String("credential_env", model.CredentialEnv),
		)
		return nil, fmt.Errorf("%w: %s is not set for model %q", ErrMissingCredential, model.CredentialEnv, model.Name)
	}

	r.logger.Debug("model resolved",
		zap.String("model", model.Name),
		zap.String("provider", model.ProviderID()),
	)

	return &Target{
		Model:      model,
		Credential: credential,
	}, nil
}
