// Package http builds the HTTP clients used for control plane calls and part transfers.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/logging"
)

// defaultProxyPort is used when a proxy host is configured without a port.
const defaultProxyPort = 8080

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// ConfigureHTTPClient returns a client honouring the proxy settings in cfg.
// The client carries constants.APIClientTimeout as its overall timeout.
func ConfigureHTTPClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	transport := newTransport()
	client := &nethttp.Client{
		Transport: transport,
		Timeout:   constants.APIClientTimeout,
	}

	mode := strings.ToLower(cfg.ProxyMode)
	switch mode {
	case "no-proxy", "":
		transport.Proxy = nil
		return client, nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "basic", "ntlm":
		// Incomplete saved config: run without a proxy rather than refuse to start
		if cfg.ProxyHost == "" {
			logger.Warn().Str("mode", mode).Msg("Proxy host is missing - falling back to no-proxy mode")
			transport.Proxy = nil
			return client, nil
		}

		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger)

		if cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			logger.Warn().Msg("Proxy user configured but password missing - proxy auth disabled until password is set")
		}

		if mode == "ntlm" {
			client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
		}

		// Warm up only with complete credentials; a missing password is prompted for by the CLI
		if cfg.ProxyWarmup && cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
			if err := warmupProxy(client, cfg); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	if cfg.ProxyWarmup {
		if err := warmupProxy(client, cfg); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}
	return client, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = defaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, port),
	}

	// Empty password in URL can cause auth failures with some proxies
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}

	return proxyURL
}

// warmupProxy sends one request through the proxy so the first upload
// does not pay for the proxy handshake.
func warmupProxy(client *nethttp.Client, cfg *config.Config) error {
	warmupURL := cfg.APIBaseURL
	if warmupURL == "" {
		warmupURL = constants.DefaultAPIURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ProxyWarmupTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodHead, warmupURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}

	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// With an empty noProxy it behaves like nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass (direct connection)")
		} else {
			logger.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("proxied")
		}
		return result, err
	}
}

// NeedsProxyPassword returns true if the proxy configuration requires a password
// but one has not been provided. Used by CLI to determine if interactive prompt is needed.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
