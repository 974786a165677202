package models

import (
	"github.com/uptrace/bun"
)

// Code is a promotional discount code. Used counts settled orders only, so
// abandoned invoices never consume a redemption.
type Code struct {
	bun.BaseModel `bun:"table:codes"`

	Code     string `bun:"code,pk" json:"code"`
	Discount int    `bun:"discount" json:"discount"`
	Used     int    `bun:"used" json:"used"`
}
