package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status change sources. Worker transitions are SYSTEM; manual corrections
// through admin tooling are ADMIN.
const (
	SourceSystem = "SYSTEM"
	SourceAdmin  = "ADMIN"
)

// StatusChange is one append-only audit row recording a lead status
// transition. Reason is a short machine-readable cause; Detail carries
// transition-specific context such as the winning bid or a delivery error.
type StatusChange struct {
	ID         string                 `json:"id"`
	LeadID     string                 `json:"lead_id"`
	FromStatus string                 `json:"from_status"`
	ToStatus   string                 `json:"to_status"`
	Reason     string                 `json:"reason,omitempty"`
	Source     string                 `json:"source"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// HistoryStore provides append-only database operations for the lead status
// audit trail
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new history store
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append records a status transition, assigning an ID and timestamp. The
// source defaults to SYSTEM. Audit rows are written after the status update
// they describe; a failed append is logged by the caller but never rolls
// back the transition.
func (s *HistoryStore) Append(ctx context.Context, c *StatusChange) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Source == "" {
		c.Source = SourceSystem
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var detailJSON []byte
	if c.Detail != nil {
		var err error
		detailJSON, err = json.Marshal(c.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal status detail: %w", err)
		}
	}

	query := `
		INSERT INTO lead_status_history (id, lead_id, from_status, to_status, reason, source, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.LeadID, c.FromStatus, c.ToStatus, c.Reason, c.Source,
		nullBytes(detailJSON), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

// ListByLead returns the full audit trail for a lead in chronological order
func (s *HistoryStore) ListByLead(ctx context.Context, leadID string) ([]StatusChange, error) {
	query := `
		SELECT id, lead_id, from_status, to_status, reason, source, detail, created_at
		FROM lead_status_history
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var changes []StatusChange
	for rows.Next() {
		var c StatusChange
		var detailJSON []byte
		if err := rows.Scan(&c.ID, &c.LeadID, &c.FromStatus, &c.ToStatus, &c.Reason, &c.Source, &detailJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &c.Detail); err != nil {
				return nil, fmt.Errorf("failed to parse status detail: %w", err)
			}
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}
	return changes, nil
}
