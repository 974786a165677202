package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Order is one purchase intent. EventReferenceID is the opaque token used to
// correlate payment events back to the order; it is never the primary key.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID               string    `bun:"id,pk" json:"id"`
	EventReferenceID string    `bun:"event_reference_id,unique,notnull" json:"event_reference_id"`
	UserID           string    `bun:"user_id,notnull" json:"user_id"`
	TicketQuantity   int       `bun:"ticket_quantity,notnull" json:"ticket_quantity"`
	TotalMilliSats   int64     `bun:"total_mili_sats,notnull" json:"total_mili_sats"`
	Paid             bool      `bun:"paid" json:"paid"`
	VerifyURL        string    `bun:"verify_url,nullzero" json:"verify_url,omitempty"`
	ZapReceiptID     string    `bun:"zap_receipt_id,nullzero" json:"zap_receipt_id,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
}

type OrderRequest struct {
	Fullname       string `json:"fullname"`
	Email          string `json:"email"`
	TicketQuantity int    `json:"ticketQuantity"`
	Newsletter     bool   `json:"newsletter"`
	Code           string `json:"code,omitempty"`
}

type OrderRequestResponse struct {
	PR               string `json:"pr"`
	Verify           string `json:"verify"`
	EventReferenceID string `json:"eventReferenceId"`
	Code             string `json:"code,omitempty"`
}

type OrderClaimRequest struct {
	Fullname   string          `json:"fullname"`
	Email      string          `json:"email"`
	ZapReceipt json.RawMessage `json:"zapReceipt"`
	Code       string          `json:"code,omitempty"`
}

type OrderVerifyRequest struct {
	EventReferenceID string `json:"eventReferenceId"`
	Code             string `json:"code,omitempty"`
	Email            string `json:"email"`
}
