package main

import (
	"context"

	"github.com/uptrace/bun"

	"ln-ticketing/internal/models"
)

// runMigrations creates the schema and seeds the configured discount codes.
// Codes already redeemed keep their usage counter; only the discount value
// is refreshed from configuration.
func runMigrations(ctx context.Context, db *bun.DB, discountCodes map[string]int) error {
	tables := []interface{}{(*models.User)(nil), (*models.Order)(nil), (*models.Ticket)(nil), (*models.Code)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	for code, discount := range discountCodes {
		seed := models.Code{Code: code, Discount: discount, Used: 0}
		_, err := db.NewInsert().
			Model(&seed).
			On("CONFLICT (code) DO UPDATE").
			Set("discount = EXCLUDED.discount").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}
