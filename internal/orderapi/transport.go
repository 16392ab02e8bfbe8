package orderapi

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"bakery-storefront-edge/config"
)

// NewTransport builds the plain network transport to the upstream, honouring
// the optional proxy. An invalid proxy URL is logged and ignored.
func NewTransport(cfg config.UpstreamConfig, log *zap.SugaredLogger) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warnf("invalid proxy url %q, connecting directly: %v", cfg.HTTPProxy, err)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}
