// Package provider defines platform publishing clients and the registry the
// pipeline resolves them from.
package provider

import (
	"context"
	"fmt"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
)

// Result is the platform's answer to a successful publish.
type Result struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Provider publishes content to one external platform.
type Provider interface {
	// Publish renders and posts the content, returning the platform's post
	// identifier. Metadata is passed through from the content item unchanged.
	Publish(ctx context.Context, content string, metadata domain.Metadata) (*Result, error)

	// ValidateCredentials reports whether the configured credentials are
	// accepted by the platform.
	ValidateCredentials(ctx context.Context) (bool, error)
}

// Registry maps platform identifiers to providers. It is built once at
// startup and read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// Config describes one configured provider.
type Config struct {
	Platform    string `yaml:"platform"`
	Type        string `yaml:"type"` // "mastodon" or "webhook"
	URL         string `yaml:"url"`
	AccessToken string `yaml:"access_token"`
}

// NewRegistry builds providers from configuration. Unknown provider types
// are an error; the enqueue path stays provider-agnostic, so a platform
// missing here surfaces later as an executor failure, not a config error.
func NewRegistry(configs []Config, log logger.Logger) (*Registry, error) {
	providers := make(map[string]Provider, len(configs))
	for _, cfg := range configs {
		var p Provider
		switch cfg.Type {
		case "mastodon":
			p = NewMastodon(cfg.URL, cfg.AccessToken, log)
		case "webhook":
			p = NewWebhook(cfg.URL, cfg.AccessToken, log)
		default:
			return nil, fmt.Errorf("unknown provider type %q for platform %q", cfg.Type, cfg.Platform)
		}
		providers[cfg.Platform] = p
	}
	return &Registry{providers: providers}, nil
}

// NewRegistryFromMap builds a registry from already-constructed providers.
// Tests use this to substitute fakes.
func NewRegistryFromMap(providers map[string]Provider) *Registry {
	copied := make(map[string]Provider, len(providers))
	for platform, p := range providers {
		copied[platform] = p
	}
	return &Registry{providers: copied}
}

// Lookup returns the provider for a platform.
func (r *Registry) Lookup(platform string) (Provider, bool) {
	p, ok := r.providers[platform]
	return p, ok
}

// Platforms returns the configured platform identifiers.
func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.providers))
	for platform := range r.providers {
		platforms = append(platforms, platform)
	}
	return platforms
}

// ValidateAll checks credentials for every configured provider, logging
// failures without aborting startup. A platform with bad credentials still
// gets publish attempts; those fail and count against retries like any
// other provider error.
func (r *Registry) ValidateAll(ctx context.Context, log logger.Logger) {
	for platform, p := range r.providers {
		ok, err := p.ValidateCredentials(ctx)
		switch {
		case err != nil:
			log.Warn("provider credential check errored",
				logger.String("platform", platform),
				logger.Error(err))
		case !ok:
			log.Warn("provider credentials rejected",
				logger.String("platform", platform))
		default:
			log.Info("provider credentials verified",
				logger.String("platform", platform))
		}
	}
}
