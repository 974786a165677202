package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is one admission credential. TicketID is the externally visible
// identifier printed into the QR code; the serial is scoped per ticket type.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID        int64     `bun:"id,pk,autoincrement" json:"-"`
	TicketID  string    `bun:"ticket_id,unique,notnull" json:"ticket_id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	OrderID   string    `bun:"order_id,nullzero" json:"order_id,omitempty"`
	Type      string    `bun:"type,notnull" json:"type"`
	Serial    int       `bun:"serial" json:"serial"`
	CheckIn   bool      `bun:"check_in" json:"check_in"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// TicketWithUser is the admin listing row: ticket joined with its holder.
type TicketWithUser struct {
	Ticket
	Fullname string `bun:"full_name" json:"fullname"`
	Email    string `bun:"email" json:"email"`
}

type CheckInResponse struct {
	AlreadyCheckedIn bool `json:"alreadyCheckedIn"`
	CheckIn          bool `json:"checkIn"`
}

type Invite struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

type InviteRequest struct {
	Action string   `json:"action"`
	List   []Invite `json:"list"`
}

type InviteResult struct {
	Email    string `json:"email"`
	TicketID string `json:"ticket_id"`
}
