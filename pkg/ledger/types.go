package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
)

// ValidSources lists the allowed CreditLot.Source values, per spec.md §3.
var ValidSources = map[string]bool{
	db.SourceEvent:    true,
	db.SourceMonthly:  true,
	db.SourceReferral: true,
	db.SourceAddOn:    true,
	db.SourceFree:     true,
}

// Lot is the API-facing view of a db.CreditLot.
type Lot struct {
	LotID           uuid.UUID  `json:"lot_id"`
	Source          string     `json:"source"`
	AmountGranted   int64      `json:"amount_granted"`
	AmountRemaining int64      `json:"amount_remaining"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Transaction is the API-facing view of a db.CreditTransaction.
type Transaction struct {
	TxID      uuid.UUID       `json:"tx_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    int64           `json:"amount"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason"`
	JobID     *uuid.UUID      `json:"job_id,omitempty"`
	StoryID   *string         `json:"story_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Summary is the response shape for summary().
type Summary struct {
	ActiveBalance int64  `json:"active_balance"`
	CachedBalance int64  `json:"cached_balance"`
	Mismatch      bool   `json:"mismatch"`
	Lots          []Lot  `json:"lots"`
	UnitLabel     string `json:"unit_label"`
}

// History is the paged response shape for history().
type History struct {
	Items      []Transaction `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalItems int           `json:"total_items"`
	TotalPages int           `json:"total_pages"`
}

func lotFromRow(l db.CreditLot) Lot {
	return Lot{
		LotID:           l.LotID,
		Source:          l.Source,
		AmountGranted:   l.AmountGranted,
		AmountRemaining: l.AmountRemaining,
		ExpiresAt:       l.ExpiresAt,
		CreatedAt:       l.CreatedAt,
	}
}

func txFromRow(t db.CreditTransaction) Transaction {
	return Transaction{
		TxID:      t.TxID,
		UserID:    t.UserID,
		Amount:    t.Amount,
		Kind:      t.Kind,
		Status:    t.Status,
		Reason:    t.Reason,
		JobID:     t.JobID,
		StoryID:   t.StoryID,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
	}
}
