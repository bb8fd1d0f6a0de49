package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Lead statuses. PENDING is the intake state; PROCESSING is held by exactly
// one worker; SOLD, DELIVERY_FAILED and REJECTED are terminal.
const (
	StatusPending        = "PENDING"
	StatusProcessing     = "PROCESSING"
	StatusSold           = "SOLD"
	StatusDeliveryFailed = "DELIVERY_FAILED"
	StatusRejected       = "REJECTED"
)

// Lead is a submitted service request. Created by intake; the engine only
// ever mutates status and the winner fields.
type Lead struct {
	ID             string                 `json:"id"`
	ServiceTypeID  string                 `json:"service_type_id"`
	ZipCode        string                 `json:"zip_code"`
	FormData       map[string]interface{} `json:"form_data"`
	Compliance     map[string]interface{} `json:"compliance"`
	Status         string                 `json:"status"`
	WinningBuyerID *string                `json:"winning_buyer_id,omitempty"`
	WinningBid     *float64               `json:"winning_bid,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ServiceType is immutable reference data describing one lead vertical
type ServiceType struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	FormSchema json.RawMessage `json:"form_schema"`
}

// LeadStore provides database operations for leads, including the atomic
// claim/advance protocol that substitutes for a lock
type LeadStore struct {
	db *sql.DB
}

// NewLeadStore creates a new lead store
func NewLeadStore(db *sql.DB) *LeadStore {
	return &LeadStore{db: db}
}

// GetByID retrieves a lead. Returns nil when not found.
func (s *LeadStore) GetByID(ctx context.Context, leadID string) (*Lead, error) {
	query := `
		SELECT id, service_type_id, zip_code, form_data, compliance,
		       status, winning_buyer_id, winning_bid, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var l Lead
	var formJSON, complianceJSON []byte

	err := s.db.QueryRowContext(ctx, query, leadID).Scan(
		&l.ID,
		&l.ServiceTypeID,
		&l.ZipCode,
		&formJSON,
		&complianceJSON,
		&l.Status,
		&l.WinningBuyerID,
		&l.WinningBid,
		&l.CreatedAt,
		&l.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}

	if len(formJSON) > 0 {
		if err := json.Unmarshal(formJSON, &l.FormData); err != nil {
			return nil, fmt.Errorf("failed to parse form_data: %w", err)
		}
	}
	if len(complianceJSON) > 0 {
		if err := json.Unmarshal(complianceJSON, &l.Compliance); err != nil {
			return nil, fmt.Errorf("failed to parse compliance: %w", err)
		}
	}

	return &l, nil
}

// GetServiceType retrieves a service type. Returns nil when not found.
func (s *LeadStore) GetServiceType(ctx context.Context, serviceTypeID string) (*ServiceType, error) {
	query := `SELECT id, name, form_schema FROM service_types WHERE id = $1`

	var st ServiceType
	err := s.db.QueryRowContext(ctx, query, serviceTypeID).Scan(&st.ID, &st.Name, &st.FormSchema)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service type: %w", err)
	}
	return &st, nil
}

// ClaimPending atomically transitions a lead PENDING -> PROCESSING.
//
// The update is conditional on the persisted status still being PENDING; a
// zero affected-row count means another worker already claimed the lead and
// is reported as claimed=false, not an error. This conditional-update check
// is the only concurrency control for lead ownership.
func (s *LeadStore) ClaimPending(ctx context.Context, leadID string) (bool, error) {
	query := `
		UPDATE leads
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusProcessing, leadID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim lead: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// AdvanceFromProcessing transitions a claimed lead to a terminal status,
// conditional on the persisted status still being PROCESSING. The same
// zero-rows contract as ClaimPending applies: a racing completion that got
// there first is never overwritten.
func (s *LeadStore) AdvanceFromProcessing(ctx context.Context, leadID, newStatus string) (bool, error) {
	switch newStatus {
	case StatusSold, StatusDeliveryFailed, StatusRejected:
	default:
		return false, fmt.Errorf("invalid terminal status: %s", newStatus)
	}

	query := `
		UPDATE leads
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, newStatus, leadID, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to advance lead: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// AdvanceWithWinner transitions a claimed lead to SOLD or DELIVERY_FAILED
// and records the winning buyer and bid in the same conditional update
func (s *LeadStore) AdvanceWithWinner(ctx context.Context, leadID, newStatus, buyerID string, bid float64) (bool, error) {
	if newStatus != StatusSold && newStatus != StatusDeliveryFailed {
		return false, fmt.Errorf("winner fields only valid for SOLD or DELIVERY_FAILED, got %s", newStatus)
	}

	query := `
		UPDATE leads
		SET status = $1, winning_buyer_id = $2, winning_bid = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, newStatus, buyerID, bid, leadID, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to advance lead with winner: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}
