package cli

import (
	"fmt"

	"github.com/alchemab/aab/internal/api"
	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/http"
)

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// loadConfig layers file, environment and flags, in increasing precedence.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.MergeWithFlags(apiBaseURL, idToken, accessToken, tokenFile)

	if cfg.TokenFile == "" {
		if p, err := config.DefaultTokenPath(); err == nil {
			cfg.TokenFile = p
		}
	}
	return cfg, nil
}

// credentialSource prefers tokens given by flag or env, then the token file.
func credentialSource(cfg *config.Config) credentials.Source {
	chain := credentials.Chain{}
	if cfg.IDToken != "" || cfg.AccessToken != "" {
		chain = append(chain, credentials.Static{IDToken: cfg.IDToken, AccessToken: cfg.AccessToken})
	}
	if cfg.TokenFile != "" {
		chain = append(chain, credentials.File{Path: cfg.TokenFile})
	}
	return chain
}

// getAPIClient loads configuration and creates an API client with its
// credential source. This is the standard way to reach the control plane
// from a command.
func getAPIClient() (*api.Client, credentials.Source, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForClient(); err != nil {
		return nil, nil, err
	}

	if http.NeedsProxyPassword(cfg) {
		password, err := promptProxyPassword(cfg.ProxyUser)
		if err != nil {
			return nil, nil, err
		}
		cfg.ProxyPassword = password
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, credentialSource(cfg), nil
}
