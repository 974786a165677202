package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ln-ticketing/internal/models"
	"ln-ticketing/internal/utils"
)

var ErrOrderNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// SettlementResult is what one settlement attempt produced. AlreadyPaid means
// another caller won the transition first and no tickets were minted here.
type SettlementResult struct {
	Tickets          []models.Ticket
	AlreadyPaid      bool
	EventReferenceID string
}

// CreateOrder upserts the purchaser by email and creates a pending order in
// one transaction. Either both rows materialize or neither does.
func (d *DB) CreateOrder(ctx context.Context, fullname, email string, ticketQuantity int, totalMilliSats int64) (*models.Order, error) {
	order := &models.Order{
		ID:               uuid.NewString(),
		EventReferenceID: utils.NewEventReferenceID(),
		TicketQuantity:   ticketQuantity,
		TotalMilliSats:   totalMilliSats,
		Paid:             false,
		CreatedAt:        time.Now(),
	}

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var user models.User
		err := tx.NewSelect().
			Model(&user).
			Where("email = ?", email).
			Limit(1).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			user = models.User{
				ID:        uuid.NewString(),
				Email:     email,
				FullName:  fullname,
				CreatedAt: time.Now(),
			}
			if _, err := tx.NewInsert().Model(&user).Exec(ctx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// Repeat purchaser: refresh the name they typed this time.
			if user.FullName != fullname {
				user.FullName = fullname
				if _, err := tx.NewUpdate().
					Model(&user).
					Column("full_name").
					Where("id = ?", user.ID).
					Exec(ctx); err != nil {
					return err
				}
			}
		}

		order.UserID = user.ID
		_, err = tx.NewInsert().Model(order).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

func (d *DB) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("event_reference_id = ?", reference).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetVerifyURL attaches the LUD-21 verification URL after invoice issuance.
func (d *DB) SetVerifyURL(ctx context.Context, reference, verifyURL string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("verify_url = ?", verifyURL).
		Where("event_reference_id = ?", reference).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// settleAttempts bounds how often a settlement transaction is retried after
// Postgres aborts it with a serialization failure.
const settleAttempts = 3

// isSerializationFailure reports whether err is a Postgres serialization
// failure (40001) or deadlock (40P01), both of which are safe to retry.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// withSerializableRetry runs fn until it returns something other than a
// serialization failure, up to settleAttempts times.
func withSerializableRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		if err = fn(); !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

// SettleOrder flips the order to paid exactly once and mints its tickets.
//
// The guard is the conditional update on the paid flag: of two concurrent
// callers, at most one sees a row affected; the other gets AlreadyPaid. The
// max-serial read and the ticket inserts run in a serializable transaction:
// two settlements of different orders for the same type cannot both read the
// same MAX(serial), the loser is aborted by Postgres and retried.
func (d *DB) SettleOrder(ctx context.Context, reference, zapReceiptID, code, ticketType string) (*SettlementResult, error) {
	var result *SettlementResult
	err := withSerializableRetry(func() error {
		var err error
		result, err = d.settleOnce(ctx, reference, zapReceiptID, code, ticketType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) settleOnce(ctx context.Context, reference, zapReceiptID, code, ticketType string) (*SettlementResult, error) {
	result := &SettlementResult{EventReferenceID: reference}

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		var order models.Order
		err := tx.NewSelect().
			Model(&order).
			Where("event_reference_id = ?", reference).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if order.Paid {
			result.AlreadyPaid = true
			return nil
		}

		update := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("paid = ?", true).
			Where("event_reference_id = ? AND paid = ?", reference, false)
		if zapReceiptID != "" {
			update = update.Set("zap_receipt_id = ?", zapReceiptID)
		}
		res, err := update.Exec(ctx)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			// Another caller flipped the flag between our read and write.
			result.AlreadyPaid = true
			return nil
		}

		if code != "" {
			// Unknown codes get a zero-discount row instead of failing the
			// settlement: a typo'd code must not block a paid sale.
			_, err := tx.NewInsert().
				Model(&models.Code{Code: code, Discount: 0, Used: 1}).
				On("CONFLICT (code) DO UPDATE").
				Set("used = code.used + 1").
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		var maxSerial int
		err = tx.NewSelect().
			Model((*models.Ticket)(nil)).
			ColumnExpr("COALESCE(MAX(serial), 0)").
			Where("type = ?", ticketType).
			Scan(ctx, &maxSerial)
		if err != nil {
			return err
		}

		tickets := make([]models.Ticket, order.TicketQuantity)
		for i := range tickets {
			tickets[i] = models.Ticket{
				TicketID:  utils.NewTicketID(),
				UserID:    order.UserID,
				OrderID:   order.ID,
				Type:      ticketType,
				Serial:    maxSerial + i + 1,
				CheckIn:   false,
				CreatedAt: time.Now(),
			}
		}
		if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
			return err
		}

		result.Tickets = tickets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
