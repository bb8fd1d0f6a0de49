// Package auction implements the lead auction engine: eligibility
// resolution, concurrent PING collection, winner selection and POST
// delivery.
package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/config"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
	"github.com/thenexusengine/tne_leadflow/pkg/logger"
	"github.com/thenexusengine/tne_leadflow/pkg/redis"
)

// DeliveryCounter counts accepted deliveries from the transaction log
type DeliveryCounter interface {
	CountDeliveredToday(ctx context.Context, buyerID, zoneID string) (int, error)
}

// CapGate enforces per-buyer daily delivery caps. Counts live in Redis
// keyed by buyer, zone and UTC day; when Redis is unavailable the
// transaction log is the fallback source of truth.
type CapGate struct {
	redis *redis.Client
	txs   DeliveryCounter
}

// NewCapGate creates a cap gate. The Redis client may be nil, in which case
// every check goes to the database.
func NewCapGate(redisClient *redis.Client, txs DeliveryCounter) *CapGate {
	return &CapGate{redis: redisClient, txs: txs}
}

// Exhausted reports whether the buyer's daily cap for this zone is already
// met. A zero or negative cap means unlimited. Lookup failures fail open:
// the buyer stays in the auction and the error is logged.
func (g *CapGate) Exhausted(ctx context.Context, e storage.EligibleBuyer) bool {
	if e.Zone.MaxLeadsPerDay <= 0 {
		return false
	}

	count, err := g.deliveredToday(ctx, e)
	if err != nil {
		log := logger.Buyer(e.Buyer.ID)
		log.Warn().Err(err).Msg("cap lookup failed, including buyer")
		return false
	}
	return count >= e.Zone.MaxLeadsPerDay
}

// RecordDelivery bumps the delivery counter after an accepted POST. The
// Redis counter is advisory; a failed increment is logged and the next
// check falls back to the transaction log.
func (g *CapGate) RecordDelivery(ctx context.Context, e storage.EligibleBuyer) {
	if g.redis == nil {
		return
	}
	key := capKey(e.Buyer.ID, e.Zone.ID, time.Now().UTC())
	if _, err := g.redis.IncrWithTTL(ctx, key, config.LeadCapTTL); err != nil {
		log := logger.Buyer(e.Buyer.ID)
		log.Warn().Err(err).Str("key", key).Msg("failed to increment cap counter")
	}
}

func (g *CapGate) deliveredToday(ctx context.Context, e storage.EligibleBuyer) (int, error) {
	if g.redis != nil {
		key := capKey(e.Buyer.ID, e.Zone.ID, time.Now().UTC())
		count, err := g.redis.GetInt(ctx, key)
		if err == nil {
			return int(count), nil
		}
		log := logger.Buyer(e.Buyer.ID)
		log.Warn().Err(err).Msg("redis cap read failed, falling back to database")
	}
	return g.txs.CountDeliveredToday(ctx, e.Buyer.ID, e.Zone.ID)
}

func capKey(buyerID, zoneID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", config.LeadCapKeyPrefix, buyerID, zoneID, now.Format("20060102"))
}

// EligibilityLister lists candidate buyers for a service type and zip
type EligibilityLister interface {
	ListEligible(ctx context.Context, serviceTypeID, zipCode string) ([]storage.EligibleBuyer, error)
}

// Resolver produces the ordered set of buyers a lead will be auctioned to
type Resolver struct {
	buyers EligibilityLister
	caps   *CapGate
}

// NewResolver creates a resolver
func NewResolver(buyers EligibilityLister, caps *CapGate) *Resolver {
	return &Resolver{buyers: buyers, caps: caps}
}

// Resolve returns the cap-filtered eligible buyers for a lead in
// eligibility order, plus the buyers excluded because their cap is full
func (r *Resolver) Resolve(ctx context.Context, lead *storage.Lead) (eligible, capped []storage.EligibleBuyer, err error) {
	candidates, err := r.buyers.ListEligible(ctx, lead.ServiceTypeID, lead.ZipCode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve eligible buyers: %w", err)
	}

	for _, c := range candidates {
		if r.caps.Exhausted(ctx, c) {
			capped = append(capped, c)
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, capped, nil
}
