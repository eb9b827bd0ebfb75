// Package netutil builds the HTTP clients the transports share: transport
// tuning, UA defaults and the process-wide proxy configuration.
package netutil

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/omniget/omniget/internal/config"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/types"
)

// proxyCell is the process-wide proxy configuration. Read-mostly: set once at
// startup and again on settings changes.
var proxyCell struct {
	mu  sync.RWMutex
	url string
}

// InitProxy installs the proxy configuration from settings. Call at startup
// and whenever the proxy settings change.
func InitProxy(p config.ProxySettings) {
	proxyCell.mu.Lock()
	proxyCell.url = p.URL()
	proxyCell.mu.Unlock()
	if p.Enabled {
		logx.Info("proxy configured: %s://%s:%d", p.Scheme, p.Host, p.Port)
	}
}

// CurrentProxyURL returns the configured proxy URL or "".
func CurrentProxyURL() string {
	proxyCell.mu.RLock()
	defer proxyCell.mu.RUnlock()
	return proxyCell.url
}

// ClientOptions tune a client built by NewClient.
type ClientOptions struct {
	Timeout  time.Duration // overall request timeout; 0 means none
	ProxyURL string        // overrides the process-wide proxy when set
}

// NewClient builds an *http.Client with the engine's transport tuning and the
// configured proxy applied.
func NewClient(opts ClientOptions) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
	}

	proxyURL := opts.ProxyURL
	if proxyURL == "" {
		proxyURL = CurrentProxyURL()
	}
	applyProxy(transport, proxyURL)

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

func applyProxy(transport *http.Transport, proxyURL string) {
	if proxyURL == "" {
		transport.Proxy = http.ProxyFromEnvironment
		return
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		logx.Warn("invalid proxy URL, falling back to environment: %v", err)
		transport.Proxy = http.ProxyFromEnvironment
		return
	}
	if strings.HasPrefix(parsed.Scheme, "socks5") {
		var auth *proxy.Auth
		if parsed.User != nil {
			pass, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
		}
		dialer, dialErr := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if dialErr != nil {
			logx.Warn("failed to create SOCKS5 dialer: %v", dialErr)
			transport.Proxy = http.ProxyFromEnvironment
			return
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return
	}
	transport.Proxy = http.ProxyURL(parsed)
}

// NewMetadataClient returns a client with the metadata extraction timeout.
func NewMetadataClient() *http.Client {
	return NewClient(ClientOptions{Timeout: types.MetadataTimeout})
}

// NewPlaylistClient returns a client with the playlist fetch timeout.
func NewPlaylistClient() *http.Client {
	return NewClient(ClientOptions{Timeout: types.PlaylistTimeout})
}

// NewStreamClient returns a client without an overall timeout, suitable for
// long body streams; inactivity is policed by the caller.
func NewStreamClient() *http.Client {
	return NewClient(ClientOptions{})
}
