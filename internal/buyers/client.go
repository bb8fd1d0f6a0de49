// Package buyers implements the outbound HTTP surface to marketplace
// buyers: a pooled client, authentication schemes, and the two-phase
// PING/POST caller.
package buyers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/config"
	"github.com/thenexusengine/tne_leadflow/pkg/logger"
)

// RequestData represents an HTTP request to a buyer
type RequestData struct {
	Method  string
	URI     string
	Body    []byte
	Headers http.Header
}

// ResponseData represents an HTTP response from a buyer
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// HTTPClient defines the interface for buyer HTTP requests
type HTTPClient interface {
	Do(ctx context.Context, req *RequestData, timeout time.Duration) (*ResponseData, error)
}

// DefaultHTTPClient implements HTTPClient
type DefaultHTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a new HTTP client with connection pooling.
// Connection pooling reduces latency by reusing TCP connections and TLS
// sessions for repeated requests to the same buyer endpoints.
func NewHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSClientConfig: &tls.Config{
			ClientSessionCache: tls.NewLRUClientSessionCache(100),
			MinVersion:         tls.VersionTLS12,
		},

		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,

		// Buyer responses are small; skipping compression saves latency
		DisableCompression: true,
	}

	return &DefaultHTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Do executes an HTTP request. The effective timeout is the shorter of the
// given per-buyer timeout and the parent context deadline.
func (c *DefaultHTTPClient) Do(ctx context.Context, req *RequestData, timeout time.Duration) (*ResponseData, error) {
	if timeout > 0 {
		if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
			remaining := time.Until(deadline)
			if remaining < timeout {
				timeout = remaining
			}
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, nil)
	if err != nil {
		return nil, err
	}

	if len(req.Body) > 0 {
		httpReq.Body = &bodyReader{data: req.Body}
		httpReq.ContentLength = int64(len(req.Body))
	}

	for k, v := range req.Headers {
		httpReq.Header[k] = v
	}

	resp, err := c.client.Do(httpReq) //nolint:bodyclose
	if err != nil {
		return nil, err
	}

	// Single goroutine for the entire read so cancellation can't leak it
	type readResult struct {
		data []byte
		err  error
	}
	readCh := make(chan readResult, 1)

	go func() {
		defer resp.Body.Close()
		// Read with a size limit; +1 to detect overflow
		limitedReader := io.LimitReader(resp.Body, config.MaxBuyerResponseSize+1)
		data, err := io.ReadAll(limitedReader)
		readCh <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close response body to unblock the read goroutine
		resp.Body.Close()
		result := <-readCh
		if result.err != nil && !errors.Is(result.err, io.EOF) {
			logger.Log.Debug().
				Err(result.err).
				Str("uri", req.URI).
				Msg("read error during context cancellation (masked by timeout)")
		}
		return nil, ctx.Err()
	case result := <-readCh:
		if result.err != nil {
			return nil, result.err
		}
		if len(result.data) > config.MaxBuyerResponseSize {
			return nil, fmt.Errorf("response too large: exceeded %d bytes", config.MaxBuyerResponseSize)
		}
		return &ResponseData{
			StatusCode: resp.StatusCode,
			Body:       result.data,
			Headers:    resp.Header,
		}, nil
	}
}

// bodyReader wraps bytes for http.Request.Body
type bodyReader struct {
	data []byte
	pos  int
}

func (r *bodyReader) Read(p []byte) (n int, err error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n = copy(p, r.data[r.pos:])
	r.pos += n
	if r.pos >= len(r.data) {
		return n, io.EOF
	}
	return n, nil
}

func (r *bodyReader) Close() error {
	return nil
}
