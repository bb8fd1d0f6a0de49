package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transaction phases
const (
	PhasePing = "PING"
	PhasePost = "POST"
)

// Transaction is one append-only record of a buyer interaction. Every
// contacted buyer gets exactly one row per phase attempt, success or not.
type Transaction struct {
	ID             string    `json:"id"`
	LeadID         string    `json:"lead_id"`
	BuyerID        string    `json:"buyer_id"`
	ZoneID         string    `json:"zone_id"`
	Phase          string    `json:"phase"`
	RequestPayload []byte    `json:"request_payload,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	StatusCode     int       `json:"status_code"`
	BidAmount      *float64  `json:"bid_amount,omitempty"`
	Success        bool      `json:"success"`
	IsWinner       bool      `json:"is_winner"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransactionStore provides append-only database operations for buyer
// transactions. Rows are never updated or deleted.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore creates a new transaction store
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Record inserts a transaction row, assigning an ID and timestamp
func (s *TransactionStore) Record(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (
			id, lead_id, buyer_id, zone_id, phase,
			request_payload, response_body, status_code,
			bid_amount, success, is_winner, error_detail, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.LeadID, tx.BuyerID, tx.ZoneID, tx.Phase,
		nullBytes(tx.RequestPayload), nullBytes(tx.ResponseBody), tx.StatusCode,
		tx.BidAmount, tx.Success, tx.IsWinner, tx.ErrorDetail, tx.DurationMS, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// ListByLead returns all transactions for a lead in insertion order
func (s *TransactionStore) ListByLead(ctx context.Context, leadID string) ([]Transaction, error) {
	query := `
		SELECT id, lead_id, buyer_id, zone_id, phase,
		       request_payload, response_body, status_code,
		       bid_amount, success, is_winner, error_detail, duration_ms, created_at
		FROM transactions
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var errDetail sql.NullString
		err := rows.Scan(
			&tx.ID, &tx.LeadID, &tx.BuyerID, &tx.ZoneID, &tx.Phase,
			&tx.RequestPayload, &tx.ResponseBody, &tx.StatusCode,
			&tx.BidAmount, &tx.Success, &tx.IsWinner, &errDetail, &tx.DurationMS, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ErrorDetail = errDetail.String
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// CountDeliveredToday counts successful POST deliveries to a buyer config's
// zone today (UTC). Used as the cap source of truth when Redis is
// unavailable.
func (s *TransactionStore) CountDeliveredToday(ctx context.Context, buyerID, zoneID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE buyer_id = $1
		  AND zone_id = $2
		  AND phase = $3
		  AND success = true
		  AND created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC')
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, buyerID, zoneID, PhasePost).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

// nullBytes maps an empty payload to SQL NULL so JSONB columns reject
// zero-length input cleanly
func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
