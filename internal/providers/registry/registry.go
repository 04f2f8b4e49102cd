package registry

import (
	"fmt"
	"net/http"

	"chatrecall/internal/providers"
	"chatrecall/internal/providers/openai"
	"chatrecall/internal/providers/openai_compat"
	"chatrecall/internal/settings"
)

type BuildOptions struct {
	HTTPClient *http.Client
	// HostedBaseURL overrides the hosted endpoint; empty means the public API.
	HostedBaseURL string
}

// Build is the only place that branches on the provider name. A hosted
// provider without an API key fails here, before any network call.
func Build(cfg settings.Effective, opts BuildOptions) (providers.Provider, error) {
	switch cfg.Provider {
	case settings.ProviderLocal:
		return openai_compat.New(openai_compat.Config{
			BaseURL:    cfg.LocalURL,
			Model:      cfg.LocalModel,
			HTTPClient: opts.HTTPClient,
		}), nil

	case settings.ProviderHosted:
		if cfg.HostedAPIKey == "" {
			return nil, providers.ErrMissingAPIKey
		}
		return openai.New(openai.Config{
			APIKey:     cfg.HostedAPIKey,
			Model:      cfg.HostedModel,
			BaseURL:    opts.HostedBaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
