package strategy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Should never happen with a valid utls version; the zero spec makes
		// ApplyPreset fail loudly at dial time instead.
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server never
	// negotiates HTTP/2, which Go's http.Transport cannot speak over a utls
	// connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// DirectHTTP fetches result pages with plain HTTP requests carrying a Chrome
// TLS fingerprint. It is the cheapest strategy and the last-resort fallback
// when both browser strategies are being blocked.
type DirectHTTP struct {
	client     *http.Client
	identities *identityPool
}

// NewDirectHTTP creates a DirectHTTP strategy. proxy, if non-empty, routes
// all requests through the given HTTP(S) proxy.
func NewDirectHTTP(proxy string) *DirectHTTP {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("direct: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &DirectHTTP{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		identities: newIdentityPool(),
	}
}

func (s *DirectHTTP) Name() string { return "http" }

// Fetch retrieves the query URL. HTTP error statuses (403, 429, ...) are NOT
// transport errors here: the payload is returned with its status code so the
// blocking detector can classify it.
func (s *DirectHTTP) Fetch(ctx context.Context, q *Query) (*models.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "build request", err)
	}

	id := s.identities.Next()
	req.Header.Set("User-Agent", id.UserAgent)
	for k, v := range id.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept-Encoding", "identity") // no compression, keep body parseable

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "request failed", err)
	}
	defer resp.Body.Close()

	// 10 MB cap to prevent unbounded memory use.
	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "read body", err)
	}

	// resp.Request is only guaranteed non-nil with a real *http.Transport.
	finalURL := q.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &models.Payload{
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Strategy:   s.Name(),
		FetchedAt:  time.Now(),
	}, nil
}

// Close drops any idle connections.
func (s *DirectHTTP) Close() {
	s.client.CloseIdleConnections()
}
