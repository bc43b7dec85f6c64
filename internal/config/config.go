// Package config provides configuration management for aab.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/alchemab/aab/internal/constants"
)

// Config is the full client and gateway configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\aab\config
//   - Unix: ~/.config/aab/config
//
// INI format:
//
//	[api]
//	url = https://api.autoantibody.alchemab.com
//	token_file = ~/.config/aab/token
//	pipeline_revision = v1.0.28
//
//	[proxy]
//	mode = no-proxy
//
//	[gateway]
//	listen = :8080
//	bucket = autoantibody-uploads
//	region = eu-west-2
//	allowed_groups = eu-west-2_umWVAeebs_Okta
//
// Tokens and the proxy password are never written to this file.
type Config struct {
	// Control plane
	APIBaseURL       string
	TokenFile        string
	PipelineRevision string
	RatePerSec       float64
	RateBurst        int

	// Caller identity, from env or flags only
	IDToken     string
	AccessToken string

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	Gateway GatewayConfig
}

// GatewayConfig configures the companion control plane served by `aab serve`.
type GatewayConfig struct {
	Listen               string
	Bucket               string
	ResultsBucket        string // pipeline outputs served by download-file
	Region               string
	Endpoint             string // optional S3-compatible endpoint
	PresignExpirySeconds int
	JWTSecret            string
	AllowedGroups        []string
	KeySuffix            string
}

// Validation errors
var (
	ErrMissingAPIURL      = errors.New("api url is required")
	ErrMissingIdentity    = errors.New("an id token and access token (or a token file) are required")
	ErrMissingBucket      = errors.New("gateway bucket is required")
	ErrMissingRegion      = errors.New("gateway region is required")
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrInvalidPresignTime = errors.New("presign_expiry_seconds must be between 1 and 604800")
	ErrUnknownKey         = errors.New("unknown config key")
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIURL        = "AAB_API_URL"
	EnvIDToken       = "AAB_ID_TOKEN"
	EnvAccessToken   = "AAB_ACCESS_TOKEN"
	EnvTokenFile     = "AAB_TOKEN_FILE"
	EnvProxyPassword = "AAB_PROXY_PASSWORD"
	EnvJWTSecret     = "AAB_GATEWAY_JWT_SECRET"
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		APIBaseURL:       constants.DefaultAPIURL,
		PipelineRevision: constants.DefaultPipelineRevision,
		RatePerSec:       constants.GatewayRatePerSec,
		RateBurst:        constants.GatewayBurst,
		ProxyMode:        "no-proxy",
		Gateway: GatewayConfig{
			Listen:               constants.DefaultGatewayListen,
			PresignExpirySeconds: int(constants.PresignExpiry.Seconds()),
			KeySuffix:            constants.DefaultKeySuffix,
		},
	}
}

// Dir returns the aab configuration directory.
// - Windows: %USERPROFILE%\.config\aab
// - Unix: ~/.config/aab
func Dir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "aab"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aab"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultTokenPath returns the default token file path.
func DefaultTokenPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// Load reads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	apiSection := iniFile.Section("api")
	cfg.APIBaseURL = apiSection.Key("url").MustString(cfg.APIBaseURL)
	cfg.TokenFile = expandHome(apiSection.Key("token_file").String())
	cfg.PipelineRevision = apiSection.Key("pipeline_revision").MustString(cfg.PipelineRevision)
	cfg.RatePerSec = apiSection.Key("rate_per_sec").MustFloat64(cfg.RatePerSec)
	cfg.RateBurst = apiSection.Key("rate_burst").MustInt(cfg.RateBurst)

	proxySection := iniFile.Section("proxy")
	cfg.ProxyMode = proxySection.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxySection.Key("host").String()
	cfg.ProxyPort = proxySection.Key("port").MustInt(0)
	cfg.ProxyUser = proxySection.Key("user").String()
	cfg.NoProxy = proxySection.Key("no_proxy").String()
	cfg.ProxyWarmup = proxySection.Key("warmup").MustBool(false)

	gwSection := iniFile.Section("gateway")
	cfg.Gateway.Listen = gwSection.Key("listen").MustString(cfg.Gateway.Listen)
	cfg.Gateway.Bucket = gwSection.Key("bucket").String()
	cfg.Gateway.ResultsBucket = gwSection.Key("results_bucket").String()
	cfg.Gateway.Region = gwSection.Key("region").String()
	cfg.Gateway.Endpoint = gwSection.Key("endpoint").String()
	cfg.Gateway.PresignExpirySeconds = gwSection.Key("presign_expiry_seconds").MustInt(cfg.Gateway.PresignExpirySeconds)
	cfg.Gateway.JWTSecret = gwSection.Key("jwt_secret").String()
	cfg.Gateway.AllowedGroups = splitList(gwSection.Key("allowed_groups").String())
	cfg.Gateway.KeySuffix = gwSection.Key("key_suffix").MustString(cfg.Gateway.KeySuffix)

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist. Tokens and the proxy
// password are not persisted; a gateway secret read from the file is kept.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	apiSection, err := iniFile.NewSection("api")
	if err != nil {
		return fmt.Errorf("failed to create api section: %w", err)
	}
	apiSection.Key("url").SetValue(cfg.APIBaseURL)
	apiSection.Key("token_file").SetValue(cfg.TokenFile)
	apiSection.Key("pipeline_revision").SetValue(cfg.PipelineRevision)
	apiSection.Key("rate_per_sec").SetValue(strconv.FormatFloat(cfg.RatePerSec, 'f', -1, 64))
	apiSection.Key("rate_burst").SetValue(strconv.Itoa(cfg.RateBurst))

	proxySection, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxySection.Key("mode").SetValue(cfg.ProxyMode)
	proxySection.Key("host").SetValue(cfg.ProxyHost)
	proxySection.Key("port").SetValue(strconv.Itoa(cfg.ProxyPort))
	proxySection.Key("user").SetValue(cfg.ProxyUser)
	proxySection.Key("no_proxy").SetValue(cfg.NoProxy)
	proxySection.Key("warmup").SetValue(strconv.FormatBool(cfg.ProxyWarmup))

	gwSection, err := iniFile.NewSection("gateway")
	if err != nil {
		return fmt.Errorf("failed to create gateway section: %w", err)
	}
	gwSection.Key("listen").SetValue(cfg.Gateway.Listen)
	gwSection.Key("bucket").SetValue(cfg.Gateway.Bucket)
	gwSection.Key("results_bucket").SetValue(cfg.Gateway.ResultsBucket)
	gwSection.Key("region").SetValue(cfg.Gateway.Region)
	gwSection.Key("endpoint").SetValue(cfg.Gateway.Endpoint)
	gwSection.Key("presign_expiry_seconds").SetValue(strconv.Itoa(cfg.Gateway.PresignExpirySeconds))
	gwSection.Key("allowed_groups").SetValue(strings.Join(cfg.Gateway.AllowedGroups, ","))
	gwSection.Key("key_suffix").SetValue(cfg.Gateway.KeySuffix)
	if cfg.Gateway.JWTSecret != "" {
		gwSection.Key("jwt_secret").SetValue(cfg.Gateway.JWTSecret)
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// ApplyEnv overlays values from AAB_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvIDToken); v != "" {
		c.IDToken = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv(EnvTokenFile); v != "" {
		c.TokenFile = expandHome(v)
	}
	if v := os.Getenv(EnvProxyPassword); v != "" {
		c.ProxyPassword = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Gateway.JWTSecret = v
	}
}

// MergeWithFlags overrides values with non-empty command line flags.
// Flags take precedence over environment and file.
func (c *Config) MergeWithFlags(apiURL, idToken, accessToken, tokenFile string) {
	if apiURL != "" {
		c.APIBaseURL = apiURL
	}
	if idToken != "" {
		c.IDToken = idToken
	}
	if accessToken != "" {
		c.AccessToken = accessToken
	}
	if tokenFile != "" {
		c.TokenFile = expandHome(tokenFile)
	}
}

// ValidateForClient checks the settings needed to talk to the control plane.
func (c *Config) ValidateForClient() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIURL
	}
	if c.TokenFile == "" && (c.IDToken == "" || c.AccessToken == "") {
		return ErrMissingIdentity
	}
	return c.validateProxy()
}

// ValidateForGateway checks the settings needed by `aab serve`.
func (c *Config) ValidateForGateway() error {
	if strings.TrimSpace(c.Gateway.Bucket) == "" {
		return ErrMissingBucket
	}
	if strings.TrimSpace(c.Gateway.Region) == "" {
		return ErrMissingRegion
	}
	if c.Gateway.PresignExpirySeconds < 1 || c.Gateway.PresignExpirySeconds > 604800 {
		return ErrInvalidPresignTime
	}
	return nil
}

func (c *Config) validateProxy() error {
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProxyMode, c.ProxyMode)
	}
}

// settable maps `aab config set` keys to setters.
var settable = map[string]func(c *Config, v string) error{
	"api.url":               func(c *Config, v string) error { c.APIBaseURL = v; return nil },
	"api.token_file":        func(c *Config, v string) error { c.TokenFile = expandHome(v); return nil },
	"api.pipeline_revision": func(c *Config, v string) error { c.PipelineRevision = v; return nil },
	"api.rate_per_sec": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("rate_per_sec must be a positive number, got %q", v)
		}
		c.RatePerSec = f
		return nil
	},
	"api.rate_burst": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("rate_burst must be a positive integer, got %q", v)
		}
		c.RateBurst = n
		return nil
	},
	"proxy.mode": func(c *Config, v string) error {
		c.ProxyMode = v
		return c.validateProxy()
	},
	"proxy.host": func(c *Config, v string) error { c.ProxyHost = v; return nil },
	"proxy.port": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("proxy port must be between 0 and 65535, got %q", v)
		}
		c.ProxyPort = n
		return nil
	},
	"proxy.user":     func(c *Config, v string) error { c.ProxyUser = v; return nil },
	"proxy.no_proxy": func(c *Config, v string) error { c.NoProxy = v; return nil },
	"proxy.warmup": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("proxy warmup must be true or false, got %q", v)
		}
		c.ProxyWarmup = b
		return nil
	},
	"gateway.listen":         func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	"gateway.bucket":         func(c *Config, v string) error { c.Gateway.Bucket = v; return nil },
	"gateway.results_bucket": func(c *Config, v string) error { c.Gateway.ResultsBucket = v; return nil },
	"gateway.region":         func(c *Config, v string) error { c.Gateway.Region = v; return nil },
	"gateway.endpoint":       func(c *Config, v string) error { c.Gateway.Endpoint = v; return nil },
	"gateway.presign_expiry_seconds": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("presign_expiry_seconds must be an integer, got %q", v)
		}
		c.Gateway.PresignExpirySeconds = n
		return nil
	},
	"gateway.allowed_groups": func(c *Config, v string) error { c.Gateway.AllowedGroups = splitList(v); return nil },
	"gateway.key_suffix":     func(c *Config, v string) error { c.Gateway.KeySuffix = v; return nil },
}

// Set updates a single key given in section.key form.
func (c *Config) Set(key, value string) error {
	setter, ok := settable[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("%w: %s (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	return setter(c, strings.TrimSpace(value))
}

// Keys returns the sorted list of keys accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
