package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/buyers"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
	"github.com/thenexusengine/tne_leadflow/pkg/logger"
)

// Auction result labels
const (
	ResultSold           = "sold"
	ResultDeliveryFailed = "delivery_failed"
	ResultNoBuyers       = "no_buyers"
	ResultNoBids         = "no_bids"
	ResultError          = "error"
)

// LeadStore is the slice of lead persistence the engine needs
type LeadStore interface {
	GetByID(ctx context.Context, leadID string) (*storage.Lead, error)
	ClaimPending(ctx context.Context, leadID string) (bool, error)
	AdvanceFromProcessing(ctx context.Context, leadID, newStatus string) (bool, error)
	AdvanceWithWinner(ctx context.Context, leadID, newStatus, buyerID string, bid float64) (bool, error)
}

// TransactionRecorder appends buyer exchange records
type TransactionRecorder interface {
	Record(ctx context.Context, tx *storage.Transaction) error
}

// HistoryAppender appends lead status audit rows
type HistoryAppender interface {
	Append(ctx context.Context, c *storage.StatusChange) error
}

// EligibilityResolver produces the buyers a lead is auctioned to
type EligibilityResolver interface {
	Resolve(ctx context.Context, lead *storage.Lead) (eligible, capped []storage.EligibleBuyer, err error)
}

// MetricsRecorder interface for recording auction metrics
type MetricsRecorder interface {
	RecordClaim(won bool)
	RecordAuction(result string, duration time.Duration, eligibleBuyers int)
	RecordBid(buyer string, amount float64)
	RecordBuyerRequest(buyer, phase string, latency time.Duration, errKind string, timedOut bool)
	RecordDelivery(result string)
	RecordCapExhausted(buyer string)
}

// Engine drives a lead through its full lifecycle: claim, eligibility,
// PING fan-out, winner selection, POST delivery and the terminal status
// write. One ProcessLead call handles one lead end to end.
type Engine struct {
	leads    LeadStore
	txs      TransactionRecorder
	history  HistoryAppender
	resolver EligibilityResolver

	collector *Collector
	caller    *buyers.Caller
	caps      *CapGate

	metrics        MetricsRecorder
	auctionTimeout time.Duration
}

// NewEngine creates an engine
func NewEngine(
	leads LeadStore,
	txs TransactionRecorder,
	history HistoryAppender,
	resolver EligibilityResolver,
	collector *Collector,
	caller *buyers.Caller,
	caps *CapGate,
	auctionTimeout time.Duration,
) *Engine {
	return &Engine{
		leads:          leads,
		txs:            txs,
		history:        history,
		resolver:       resolver,
		collector:      collector,
		caller:         caller,
		caps:           caps,
		auctionTimeout: auctionTimeout,
	}
}

// SetMetrics sets the metrics recorder
func (e *Engine) SetMetrics(m MetricsRecorder) {
	e.metrics = m
}

// ProcessLead runs one lead through the auction. A claim lost to another
// worker is a silent no-op. Any error after a successful claim still lands
// the lead in a terminal status; a returned error means the message should
// be retried because the claim itself could not be attempted or completed.
func (e *Engine) ProcessLead(ctx context.Context, leadID string) error {
	log := logger.Lead(leadID)

	claimed, err := e.leads.ClaimPending(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to claim lead %s: %w", leadID, err)
	}
	if !claimed {
		if e.metrics != nil {
			e.metrics.RecordClaim(false)
		}
		log.Debug().Msg("lead not claimable, skipping")
		return nil
	}
	if e.metrics != nil {
		e.metrics.RecordClaim(true)
	}
	e.appendHistory(ctx, leadID, storage.StatusPending, storage.StatusProcessing, "claimed", nil)

	start := time.Now()
	result, eligibleCount, err := e.runAuction(ctx, leadID)
	if err != nil {
		// The lead is claimed and must not stay stuck in PROCESSING
		log.Error().Err(err).Msg("auction failed, rejecting lead")
		e.reject(ctx, leadID, "internal_error", map[string]interface{}{"error": err.Error()})
		result = ResultError
	}
	if e.metrics != nil {
		e.metrics.RecordAuction(result, time.Since(start), eligibleCount)
	}
	return nil
}

// runAuction executes the auction for an already-claimed lead and returns
// the result label. Business outcomes (no buyers, no bids, delivery
// rejected) are not errors; only infrastructure failures are.
func (e *Engine) runAuction(ctx context.Context, leadID string) (string, int, error) {
	log := logger.Lead(leadID)

	lead, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		return "", 0, err
	}
	if lead == nil {
		return "", 0, fmt.Errorf("claimed lead %s not found", leadID)
	}

	eligible, capped, err := e.resolver.Resolve(ctx, lead)
	if err != nil {
		return "", 0, err
	}
	for _, c := range capped {
		if e.metrics != nil {
			e.metrics.RecordCapExhausted(c.Buyer.Name)
		}
		log.Info().Str("buyer", c.Buyer.Name).Msg("buyer excluded, daily cap reached")
	}

	if len(eligible) == 0 {
		log.Info().Msg("no eligible buyers, rejecting lead")
		e.reject(ctx, leadID, "no_eligible_buyers", nil)
		return ResultNoBuyers, 0, nil
	}

	data := leadData(lead)

	auctionCtx, cancel := context.WithTimeout(ctx, e.auctionTimeout)
	outcomes := e.collector.CollectBids(auctionCtx, data, eligible)
	cancel()

	for i := range outcomes {
		e.recordPing(ctx, lead, &outcomes[i])
	}

	winner := SelectWinner(outcomes)
	if winner == nil {
		log.Info().Int("buyers", len(eligible)).Msg("no valid bids, rejecting lead")
		e.reject(ctx, leadID, "no_valid_bids", map[string]interface{}{
			"buyers_contacted": len(eligible),
		})
		return ResultNoBids, len(eligible), nil
	}

	log.Info().
		Str("buyer", winner.Eligible.Buyer.Name).
		Float64("bid", winner.Result.Bid).
		Msg("winner selected, delivering lead")

	result, err := e.deliver(ctx, lead, winner)
	return result, len(eligible), err
}

// deliver POSTs the full lead to the winner and writes the terminal state
func (e *Engine) deliver(ctx context.Context, lead *storage.Lead, winner *PingOutcome) (string, error) {
	log := logger.Lead(lead.ID)
	buyerID := winner.Eligible.Buyer.ID
	bid := winner.Result.Bid

	post, err := e.caller.Post(ctx, leadData(lead), winner.Eligible)
	e.recordPost(ctx, lead, winner.Eligible, post, err)

	accepted := err == nil && post != nil && post.Accepted

	if accepted {
		advanced, aerr := e.leads.AdvanceWithWinner(ctx, lead.ID, storage.StatusSold, buyerID, bid)
		if aerr != nil {
			return "", aerr
		}
		if !advanced {
			log.Warn().Msg("lead left PROCESSING during delivery, skipping terminal write")
			return ResultSold, nil
		}
		e.appendHistory(ctx, lead.ID, storage.StatusProcessing, storage.StatusSold, "delivery_accepted", map[string]interface{}{
			"winning_buyer_id": buyerID,
			"winning_bid":      bid,
		})
		e.caps.RecordDelivery(ctx, winner.Eligible)
		if e.metrics != nil {
			e.metrics.RecordDelivery("accepted")
		}
		log.Info().Str("buyer", winner.Eligible.Buyer.Name).Float64("bid", bid).Msg("lead sold")
		return ResultSold, nil
	}

	detail := map[string]interface{}{
		"winning_buyer_id": buyerID,
		"winning_bid":      bid,
	}
	deliveryResult := "rejected"
	reason := "delivery_rejected"
	if err != nil {
		detail["error"] = err.Error()
		deliveryResult = "failed"
		reason = "delivery_failed"
	} else if post != nil && post.Detail != "" {
		detail["error"] = post.Detail
	}

	advanced, aerr := e.leads.AdvanceWithWinner(ctx, lead.ID, storage.StatusDeliveryFailed, buyerID, bid)
	if aerr != nil {
		return "", aerr
	}
	if !advanced {
		log.Warn().Msg("lead left PROCESSING during delivery, skipping terminal write")
		return ResultDeliveryFailed, nil
	}
	e.appendHistory(ctx, lead.ID, storage.StatusProcessing, storage.StatusDeliveryFailed, reason, detail)
	if e.metrics != nil {
		e.metrics.RecordDelivery(deliveryResult)
	}
	log.Warn().
		Str("buyer", winner.Eligible.Buyer.Name).
		Err(err).
		Msg("delivery failed")
	return ResultDeliveryFailed, nil
}

// reject moves a claimed lead to REJECTED. Failures here are logged only;
// there is nothing further to fall back to.
func (e *Engine) reject(ctx context.Context, leadID, reason string, detail map[string]interface{}) {
	advanced, err := e.leads.AdvanceFromProcessing(ctx, leadID, storage.StatusRejected)
	if err != nil {
		log := logger.Lead(leadID)
		log.Error().Err(err).Msg("failed to reject lead")
		return
	}
	if advanced {
		e.appendHistory(ctx, leadID, storage.StatusProcessing, storage.StatusRejected, reason, detail)
	}
}

// recordPing writes the transaction row for one PING outcome
func (e *Engine) recordPing(ctx context.Context, lead *storage.Lead, o *PingOutcome) {
	tx := &storage.Transaction{
		LeadID:  lead.ID,
		BuyerID: o.Eligible.Buyer.ID,
		ZoneID:  o.Eligible.Zone.ID,
		Phase:   storage.PhasePing,
		Success: o.Valid(),
	}

	var latency time.Duration
	if o.Result != nil {
		tx.RequestPayload = o.Result.RequestPayload
		tx.ResponseBody = o.Result.ResponseBody
		tx.StatusCode = o.Result.StatusCode
		tx.DurationMS = o.Result.Duration.Milliseconds()
		latency = o.Result.Duration
		if o.Err == nil && o.Result.Bid > 0 {
			bid := o.Result.Bid
			tx.BidAmount = &bid
		}
	}
	if o.Err != nil {
		tx.ErrorDetail = o.Err.Error()
	}

	if err := e.txs.Record(ctx, tx); err != nil {
		log := logger.Lead(lead.ID)
		log.Error().Err(err).Str("buyer", o.Eligible.Buyer.ID).Msg("failed to record ping transaction")
	}

	if e.metrics != nil {
		e.metrics.RecordBuyerRequest(o.Eligible.Buyer.Name, storage.PhasePing, latency, o.ErrKind, o.ErrKind == ErrKindTimeout)
		if o.Valid() {
			e.metrics.RecordBid(o.Eligible.Buyer.Name, o.Result.Bid)
		}
	}
}

// recordPost writes the transaction row for the POST delivery attempt
func (e *Engine) recordPost(ctx context.Context, lead *storage.Lead, eb storage.EligibleBuyer, post *buyers.PostResult, callErr error) {
	tx := &storage.Transaction{
		LeadID:   lead.ID,
		BuyerID:  eb.Buyer.ID,
		ZoneID:   eb.Zone.ID,
		Phase:    storage.PhasePost,
		Success:  callErr == nil && post != nil && post.Accepted,
		IsWinner: true,
	}

	var latency time.Duration
	if post != nil {
		tx.RequestPayload = post.RequestPayload
		tx.ResponseBody = post.ResponseBody
		tx.StatusCode = post.StatusCode
		tx.DurationMS = post.Duration.Milliseconds()
		latency = post.Duration
	}
	if callErr != nil {
		tx.ErrorDetail = callErr.Error()
	} else if post != nil && !post.Accepted {
		tx.ErrorDetail = post.Detail
	}

	if err := e.txs.Record(ctx, tx); err != nil {
		log := logger.Lead(lead.ID)
		log.Error().Err(err).Str("buyer", eb.Buyer.ID).Msg("failed to record post transaction")
	}

	if e.metrics != nil {
		errKind := ""
		if callErr != nil {
			errKind = ErrKindNetwork
			if buyers.IsTimeout(callErr) {
				errKind = ErrKindTimeout
			}
		}
		e.metrics.RecordBuyerRequest(eb.Buyer.Name, storage.PhasePost, latency, errKind, buyers.IsTimeout(callErr))
	}
}

func (e *Engine) appendHistory(ctx context.Context, leadID, from, to, reason string, detail map[string]interface{}) {
	change := &storage.StatusChange{
		LeadID:     leadID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		Source:     storage.SourceSystem,
		Detail:     detail,
	}
	if err := e.history.Append(ctx, change); err != nil {
		log := logger.Lead(leadID)
		log.Error().Err(err).Str("to_status", to).Msg("failed to append status history")
	}
}

// leadData assembles the flat view of a lead that field mappings resolve
// against: form fields at the top level plus reserved lead attributes,
// which win on collision.
func leadData(lead *storage.Lead) map[string]interface{} {
	data := make(map[string]interface{}, len(lead.FormData)+5)
	for k, v := range lead.FormData {
		data[k] = v
	}
	data["lead_id"] = lead.ID
	data["zip_code"] = lead.ZipCode
	data["service_type_id"] = lead.ServiceTypeID
	data["created_at"] = lead.CreatedAt.UTC().Format(time.RFC3339)
	if lead.Compliance != nil {
		data["compliance"] = lead.Compliance
	}
	return data
}
