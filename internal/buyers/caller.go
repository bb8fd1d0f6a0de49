package buyers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/config"
	"github.com/thenexusengine/tne_leadflow/internal/mapping"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
)

// Default endpoint paths when the service config leaves them empty
const (
	defaultPingPath = "/ping"
	defaultPostPath = "/post"
)

// CallResult carries the raw facts of one buyer HTTP exchange, recorded in
// the transaction log whether or not the call succeeded
type CallResult struct {
	RequestPayload []byte
	ResponseBody   []byte
	StatusCode     int
	Duration       time.Duration
}

// PingResult is the outcome of a PING call
type PingResult struct {
	CallResult
	Bid float64
}

// PostResult is the outcome of a POST call
type PostResult struct {
	CallResult
	Accepted bool
	Detail   string
}

// StatusError indicates a non-2xx buyer response
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("buyer returned status %d", e.StatusCode)
}

// Caller executes the two-phase buyer protocol over an HTTPClient
type Caller struct {
	http HTTPClient
}

// NewCaller creates a caller backed by the given client
func NewCaller(client HTTPClient) *Caller {
	return &Caller{http: client}
}

// Ping sends the abbreviated lead payload and extracts the buyer's bid.
// The returned result is non-nil whenever a payload was built, so callers
// can record the exchange even on failure.
func (c *Caller) Ping(ctx context.Context, data map[string]interface{}, e storage.EligibleBuyer) (*PingResult, error) {
	payload, err := buildPayload(e.Config, data, mapping.PhasePing)
	if err != nil {
		return nil, err
	}

	res := &PingResult{CallResult: CallResult{RequestPayload: payload}}
	if err := c.call(ctx, e, mapping.PhasePing, &res.CallResult); err != nil {
		return res, err
	}

	bid, err := mapping.ExtractBid(e.Config.Response, res.ResponseBody)
	if err != nil {
		return res, fmt.Errorf("failed to extract bid: %w", err)
	}
	res.Bid = bid
	return res, nil
}

// Post sends the full lead payload to the winning buyer and reports whether
// the buyer accepted delivery
func (c *Caller) Post(ctx context.Context, data map[string]interface{}, e storage.EligibleBuyer) (*PostResult, error) {
	payload, err := buildPayload(e.Config, data, mapping.PhasePost)
	if err != nil {
		return nil, err
	}

	res := &PostResult{CallResult: CallResult{RequestPayload: payload}}
	if err := c.call(ctx, e, mapping.PhasePost, &res.CallResult); err != nil {
		return res, err
	}

	accepted, detail, err := mapping.ExtractDelivery(e.Config.Response, res.ResponseBody)
	if err != nil {
		return res, fmt.Errorf("failed to parse delivery response: %w", err)
	}
	res.Accepted = accepted
	res.Detail = detail
	return res, nil
}

func (c *Caller) call(ctx context.Context, e storage.EligibleBuyer, phase mapping.Phase, out *CallResult) error {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	applyAuth(headers, e.Buyer.Auth)

	req := &RequestData{
		Method:  http.MethodPost,
		URI:     endpointURL(e.Buyer, e.Config, phase),
		Body:    out.RequestPayload,
		Headers: headers,
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req, buyerTimeout(e.Config))
	out.Duration = time.Since(start)
	if err != nil {
		return err
	}

	out.StatusCode = resp.StatusCode
	out.ResponseBody = resp.Body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// buildPayload renders the outbound body for a phase. A legacy fixed
// template takes precedence over the field mapping when configured.
func buildPayload(cfg storage.BuyerServiceConfig, data map[string]interface{}, phase mapping.Phase) ([]byte, error) {
	var tmpl json.RawMessage
	if phase == mapping.PhasePing {
		tmpl = cfg.PingTemplate
	} else {
		tmpl = cfg.PostTemplate
	}
	if len(tmpl) > 0 {
		rendered := mapping.RenderTemplate(string(tmpl), data)
		if !json.Valid([]byte(rendered)) {
			return nil, fmt.Errorf("rendered %s template is not valid JSON", phase)
		}
		return []byte(rendered), nil
	}

	body, err := mapping.Build(cfg.Mapping, data, phase)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", phase, err)
	}
	return payload, nil
}

func endpointURL(buyer storage.Buyer, cfg storage.BuyerServiceConfig, phase mapping.Phase) string {
	path := cfg.PingPath
	fallback := defaultPingPath
	if phase == mapping.PhasePost {
		path = cfg.PostPath
		fallback = defaultPostPath
	}
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(buyer.APIBaseURL, "/") + path
}

func buyerTimeout(cfg storage.BuyerServiceConfig) time.Duration {
	if cfg.TimeoutMS > 0 {
		return time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return config.DefaultBuyerTimeout
}

// IsTimeout reports whether a call error was a deadline expiry, as opposed
// to a network or protocol failure
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
