package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/mapping"
)

// AuthConfig describes how to authenticate outbound requests to a buyer.
// Stored as JSONB on the buyers table.
type AuthConfig struct {
	Type       string `json:"type,omitempty"` // "bearer", "basic", "header"
	Token      string `json:"token,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	HeaderName string `json:"header_name,omitempty"`
	HeaderVal  string `json:"header_value,omitempty"`
}

// Buyer is a marketplace participant that purchases leads
type Buyer struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	APIBaseURL string     `json:"api_base_url"`
	Auth       AuthConfig `json:"auth"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BuyerServiceConfig binds a buyer to a service type and carries everything
// needed to talk to that buyer for that vertical: payload mapping, response
// extraction, endpoints and the per-request timeout. Bid bounds and caps
// live on the zone, not here.
type BuyerServiceConfig struct {
	ID            string                  `json:"id"`
	BuyerID       string                  `json:"buyer_id"`
	ServiceTypeID string                  `json:"service_type_id"`
	PingPath      string                  `json:"ping_path"`
	PostPath      string                  `json:"post_path"`
	Mapping       mapping.Config          `json:"mapping"`
	Response      mapping.ResponseMapping `json:"response"`
	TimeoutMS     int                     `json:"timeout_ms"`
	Active        bool                    `json:"active"`

	// Legacy fixed-template payloads. When set they take precedence over
	// Mapping for the corresponding phase.
	PingTemplate json.RawMessage `json:"ping_template,omitempty"`
	PostTemplate json.RawMessage `json:"post_template,omitempty"`
}

// Zone is one zip coverage row for a buyer service config: where the buyer
// bids and on what terms. Priority orders buyers within a zip; lower values
// mean higher placement. MaxLeadsPerDay of zero means uncapped, MaxBid of
// zero means no ceiling.
type Zone struct {
	ID             string  `json:"id"`
	ConfigID       string  `json:"config_id"`
	ZipPattern     string  `json:"zip_pattern"`
	Priority       int     `json:"priority"`
	MaxLeadsPerDay int     `json:"max_leads_per_day"`
	MinBid         float64 `json:"min_bid"`
	MaxBid         float64 `json:"max_bid"`
	Active         bool    `json:"active"`
}

// EligibleBuyer is the join of buyer, service config and matched zone for a
// single lead, in eligibility order
type EligibleBuyer struct {
	Buyer  Buyer
	Config BuyerServiceConfig
	Zone   Zone
}

// BuyerStore provides database operations for buyers and their configs
type BuyerStore struct {
	db *sql.DB
}

// NewBuyerStore creates a new buyer store
func NewBuyerStore(db *sql.DB) *BuyerStore {
	return &BuyerStore{db: db}
}

// ListEligible returns the buyers eligible for a lead: active buyer, active
// config for the lead's service type, and at least one zone whose zip
// pattern matches the lead's zip. Wildcard patterns use '*', translated to
// SQL LIKE. When several zones of one config match, the lowest-priority
// (best) zone is kept. Results are ordered by zone priority then buyer name
// so eligibility order is deterministic.
func (s *BuyerStore) ListEligible(ctx context.Context, serviceTypeID, zipCode string) ([]EligibleBuyer, error) {
	query := `
		SELECT DISTINCT ON (b.id)
		       b.id, b.name, b.api_base_url, b.auth_config, b.active, b.created_at,
		       c.id, c.buyer_id, c.service_type_id, c.ping_path, c.post_path,
		       c.mapping_config, c.response_config, c.timeout_ms, c.active,
		       c.ping_template, c.post_template,
		       z.id, z.config_id, z.zip_pattern, z.priority,
		       z.max_leads_per_day, z.min_bid, z.max_bid, z.active
		FROM buyers b
		JOIN buyer_service_configs c ON c.buyer_id = b.id
		JOIN buyer_service_zipcodes z ON z.config_id = c.id
		WHERE b.active = true
		  AND c.active = true
		  AND z.active = true
		  AND c.service_type_id = $1
		  AND $2 LIKE replace(z.zip_pattern, '*', '%')
		ORDER BY b.id, z.priority ASC
	`

	rows, err := s.db.QueryContext(ctx, query, serviceTypeID, zipCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible buyers: %w", err)
	}
	defer rows.Close()

	var eligible []EligibleBuyer
	for rows.Next() {
		var e EligibleBuyer
		var authJSON, mappingJSON, responseJSON []byte
		var pingTemplate, postTemplate []byte

		err := rows.Scan(
			&e.Buyer.ID, &e.Buyer.Name, &e.Buyer.APIBaseURL, &authJSON, &e.Buyer.Active, &e.Buyer.CreatedAt,
			&e.Config.ID, &e.Config.BuyerID, &e.Config.ServiceTypeID, &e.Config.PingPath, &e.Config.PostPath,
			&mappingJSON, &responseJSON, &e.Config.TimeoutMS, &e.Config.Active,
			&pingTemplate, &postTemplate,
			&e.Zone.ID, &e.Zone.ConfigID, &e.Zone.ZipPattern, &e.Zone.Priority,
			&e.Zone.MaxLeadsPerDay, &e.Zone.MinBid, &e.Zone.MaxBid, &e.Zone.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eligible buyer: %w", err)
		}

		if len(authJSON) > 0 {
			if err := json.Unmarshal(authJSON, &e.Buyer.Auth); err != nil {
				return nil, fmt.Errorf("failed to parse auth config for buyer %s: %w", e.Buyer.ID, err)
			}
		}
		if len(mappingJSON) > 0 {
			if err := json.Unmarshal(mappingJSON, &e.Config.Mapping); err != nil {
				return nil, fmt.Errorf("failed to parse mapping config for buyer %s: %w", e.Buyer.ID, err)
			}
		}
		if len(responseJSON) > 0 {
			if err := json.Unmarshal(responseJSON, &e.Config.Response); err != nil {
				return nil, fmt.Errorf("failed to parse response config for buyer %s: %w", e.Buyer.ID, err)
			}
		}
		e.Config.PingTemplate = pingTemplate
		e.Config.PostTemplate = postTemplate

		eligible = append(eligible, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligible buyers: %w", err)
	}

	// DISTINCT ON picks the best zone per buyer but leaves buyer-id order;
	// re-sort into the documented eligibility order.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Zone.Priority != eligible[j].Zone.Priority {
			return eligible[i].Zone.Priority < eligible[j].Zone.Priority
		}
		return eligible[i].Buyer.Name < eligible[j].Buyer.Name
	})

	return eligible, nil
}

// GetBuyer retrieves a buyer by ID. Returns nil when not found.
func (s *BuyerStore) GetBuyer(ctx context.Context, buyerID string) (*Buyer, error) {
	query := `SELECT id, name, api_base_url, auth_config, active, created_at FROM buyers WHERE id = $1`

	var b Buyer
	var authJSON []byte
	err := s.db.QueryRowContext(ctx, query, buyerID).Scan(
		&b.ID, &b.Name, &b.APIBaseURL, &authJSON, &b.Active, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query buyer: %w", err)
	}

	if len(authJSON) > 0 {
		if err := json.Unmarshal(authJSON, &b.Auth); err != nil {
			return nil, fmt.Errorf("failed to parse auth config: %w", err)
		}
	}

	return &b, nil
}
