// Package transport defines the request/response exchange the handle client
// runs on, and a default implementation on net/http.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrConnection is wrapped by every error Send returns when no HTTP response
// was received.
var ErrConnection = errors.New("connection error")

// ClientCertificate points at PEM files for TLS client authentication.
// Either CertificateAndKey holds both, or CertificateOnly and PrivateKey are
// separate files.
type ClientCertificate struct {
	CertificateOnly   string
	PrivateKey        string
	CertificateAndKey string
}

// Request is a fully built request descriptor.
type Request struct {
	Method     string
	URL        string
	Header     http.Header
	Body       []byte
	VerifyTLS  bool
	ClientCert *ClientCertificate
}

// Response is the raw outcome of a request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends one request and returns the server's response. It never
// retries.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Config configures the HTTP transport.
type Config struct {
	// Timeout for a whole request. Default: 30 seconds.
	Timeout time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// HTTPTransport sends requests with net/http. It keeps one http.Client per
// TLS setting, so connections are pooled across requests.
type HTTPTransport struct {
	timeout time.Duration
	logger  hclog.Logger

	mu      sync.Mutex
	clients map[tlsKey]*http.Client
}

type tlsKey struct {
	verify bool
	cert   ClientCertificate
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &HTTPTransport{
		timeout: cfg.Timeout,
		logger:  cfg.Logger.Named("transport"),
		clients: make(map[tlsKey]*http.Client),
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	client, err := t.client(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrConnection, req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrConnection, err)
	}

	t.logger.Trace("request done",
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func (t *HTTPTransport) client(req *Request) (*http.Client, error) {
	key := tlsKey{verify: req.VerifyTLS}
	if req.ClientCert != nil {
		key.cert = *req.ClientCert
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[key]; ok {
		return c, nil
	}

	tlsConfig, err := newTLSConfig(key)
	if err != nil {
		return nil, err
	}
	c := &http.Client{
		Timeout: t.timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     tlsConfig,
		},
	}
	t.clients[key] = c
	return c, nil
}

func newTLSConfig(key tlsKey) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: !key.verify,
	}

	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case key.cert.CertificateAndKey != "":
		cert, err = tls.LoadX509KeyPair(key.cert.CertificateAndKey, key.cert.CertificateAndKey)
	case key.cert.CertificateOnly != "":
		cert, err = tls.LoadX509KeyPair(key.cert.CertificateOnly, key.cert.PrivateKey)
	default:
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}
