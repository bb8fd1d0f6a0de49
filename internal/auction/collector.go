package auction

import (
	"context"
	"fmt"
	"sync"

	"github.com/thenexusengine/tne_leadflow/internal/buyers"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
)

// Error kinds used for metrics and transaction rows
const (
	ErrKindTimeout = "timeout"
	ErrKindNetwork = "network"
	ErrKindStatus  = "status"
	ErrKindPayload = "payload"
	ErrKindParse   = "parse"
	ErrKindBounds  = "bid_bounds"
)

// PingOutcome is the result of one buyer's PING, valid or failed. Failed
// outcomes keep whatever exchange data exists so it can be recorded.
type PingOutcome struct {
	Eligible storage.EligibleBuyer
	Result   *buyers.PingResult
	Err      error
	ErrKind  string
}

// Valid reports whether this outcome carries a usable bid
func (o *PingOutcome) Valid() bool {
	return o.Err == nil && o.Result != nil && o.Result.Bid > 0
}

// Collector fans PINGs out to eligible buyers concurrently
type Collector struct {
	caller        *buyers.Caller
	maxConcurrent int
}

// NewCollector creates a collector. maxConcurrent bounds in-flight buyer
// calls per auction; values <= 0 fall back to 10.
func NewCollector(caller *buyers.Caller, maxConcurrent int) *Collector {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Collector{caller: caller, maxConcurrent: maxConcurrent}
}

// CollectBids pings every eligible buyer in parallel and returns one
// outcome per buyer, in eligibility order. One buyer's failure never
// affects another's outcome; the overall deadline comes from ctx.
func (c *Collector) CollectBids(ctx context.Context, data map[string]interface{}, eligible []storage.EligibleBuyer) []PingOutcome {
	var results sync.Map
	var wg sync.WaitGroup

	sem := make(chan struct{}, c.maxConcurrent)

	for _, e := range eligible {
		wg.Add(1)
		go func(e storage.EligibleBuyer) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results.Store(e.Buyer.ID, PingOutcome{
					Eligible: e,
					Err:      ctx.Err(),
					ErrKind:  ErrKindTimeout,
				})
				return
			}

			outcome := c.ping(ctx, data, e)
			results.Store(e.Buyer.ID, outcome)
		}(e)
	}

	wg.Wait()

	// Reassemble in eligibility order so downstream tie-breaks stay
	// deterministic
	outcomes := make([]PingOutcome, 0, len(eligible))
	for _, e := range eligible {
		if v, ok := results.Load(e.Buyer.ID); ok {
			outcomes = append(outcomes, v.(PingOutcome))
		}
	}
	return outcomes
}

func (c *Collector) ping(ctx context.Context, data map[string]interface{}, e storage.EligibleBuyer) PingOutcome {
	res, err := c.caller.Ping(ctx, data, e)
	outcome := PingOutcome{Eligible: e, Result: res, Err: err}
	if err != nil {
		outcome.ErrKind = classify(res, err)
		return outcome
	}

	if !withinBounds(res.Bid, e.Zone) {
		outcome.Err = fmt.Errorf("bid %.2f outside zone bounds [%.2f, %.2f]",
			res.Bid, e.Zone.MinBid, e.Zone.MaxBid)
		outcome.ErrKind = ErrKindBounds
	}
	return outcome
}

// withinBounds applies the zone's bid sanity bounds. A zero MaxBid means
// no upper bound. A zero bid is a decline and passes through unflagged.
func withinBounds(bid float64, z storage.Zone) bool {
	if bid <= 0 {
		return true
	}
	if bid < z.MinBid {
		return false
	}
	if z.MaxBid > 0 && bid > z.MaxBid {
		return false
	}
	return true
}

// classify derives an error kind from how far the exchange got: no payload
// built means a mapping failure, no status code means the request never
// completed, a status error means the buyer answered badly, and anything
// after a 2xx is a parse failure.
func classify(res *buyers.PingResult, err error) string {
	if res == nil {
		return ErrKindPayload
	}
	if buyers.IsTimeout(err) {
		return ErrKindTimeout
	}
	if res.StatusCode == 0 {
		return ErrKindNetwork
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return ErrKindStatus
	}
	return ErrKindParse
}
