package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/logging"
)

// CreateOptimizedClient creates the client used for raw part PUTs to presigned
// storage URLs. It shares the proxy configuration of ConfigureHTTPClient and
// tunes the transport for large bodies:
//   - larger idle pool, since consecutive parts go to the same storage host
//   - no compression (part bodies are opaque bytes)
//   - HTTP/2 unless DISABLE_HTTP2=true or a proxy is active (FORCE_HTTP2=true overrides)
//   - no overall timeout; callers bound each transfer with their context
//
// A nil cfg yields a client with environment proxy settings.
func CreateOptimizedClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	if cfg != nil {
		var err error
		baseClient, err = ConfigureHTTPClient(cfg, logger)
		if err != nil {
			return nil, err
		}
	} else {
		tr := newTransport()
		tr.Proxy = nethttp.ProxyFromEnvironment
		baseClient = &nethttp.Client{Transport: tr}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it alone
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		disableHTTP2(tr)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}

// proxyActive reports whether requests will go through a proxy.
// Proxies often mishandle HTTP/2 streams mid-transfer.
func proxyActive(cfg *config.Config) bool {
	envProxy := os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	if cfg == nil {
		return envProxy
	}
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return envProxy
	default:
		return cfg.ProxyHost != ""
	}
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}
