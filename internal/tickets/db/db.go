package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ln-ticketing/internal/models"
	"ln-ticketing/internal/utils"
)

var ErrTicketNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CheckIn marks a ticket checked-in exactly once. The conditional update is
// the race guard: two concurrent scans of the same ticket yield one "first"
// check-in and one alreadyCheckedIn, never two mutations.
func (d *DB) CheckIn(ctx context.Context, ticketID string) (alreadyCheckedIn bool, err error) {
	ticket, err := d.GetTicketByTicketID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if ticket.CheckIn {
		return true, nil
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("check_in = ?", true).
		Where("ticket_id = ? AND check_in = ?", ticketID, false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Lost the race against another scanner.
		return true, nil
	}
	return false, nil
}

// MaxSerialByType returns the highest serial assigned for a type, which is
// the public "tickets sold" count used for admission caps and block pricing.
func (d *DB) MaxSerialByType(ctx context.Context, ticketType string) (int, error) {
	var maxSerial int
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(MAX(serial), 0)").
		Where("type = ?", ticketType).
		Scan(ctx, &maxSerial)
	if err != nil {
		return 0, err
	}
	return maxSerial, nil
}

// ListTicketsWithUsers returns every ticket joined with its holder, newest
// first. Admin listing only.
func (d *DB) ListTicketsWithUsers(ctx context.Context) ([]models.TicketWithUser, error) {
	var tickets []models.TicketWithUser
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("ticket.*").
		ColumnExpr("u.full_name, u.email").
		Join("JOIN users AS u ON u.id = ticket.user_id").
		Order("ticket.created_at DESC").
		Scan(ctx, &tickets)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// CreateInviteTickets grants tickets outside any order: user upserted by
// email (name refreshed), ticket minted with serial 0 and no order reference.
func (d *DB) CreateInviteTickets(ctx context.Context, invites []models.Invite, ticketType string) ([]models.InviteResult, error) {
	var results []models.InviteResult

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, invite := range invites {
			var user models.User
			err := tx.NewSelect().
				Model(&user).
				Where("email = ?", invite.Email).
				Limit(1).
				Scan(ctx)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				user = models.User{
					ID:        uuid.NewString(),
					Email:     invite.Email,
					FullName:  invite.Fullname,
					CreatedAt: time.Now(),
				}
				if _, err := tx.NewInsert().Model(&user).Exec(ctx); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if user.FullName != invite.Fullname {
					user.FullName = invite.Fullname
					if _, err := tx.NewUpdate().
						Model(&user).
						Column("full_name").
						Where("id = ?", user.ID).
						Exec(ctx); err != nil {
						return err
					}
				}
			}

			ticket := models.Ticket{
				TicketID:  utils.NewTicketID(),
				UserID:    user.ID,
				Type:      ticketType,
				Serial:    0,
				CreatedAt: time.Now(),
			}
			if _, err := tx.NewInsert().Model(&ticket).Exec(ctx); err != nil {
				return err
			}

			results = append(results, models.InviteResult{
				Email:    user.Email,
				TicketID: ticket.TicketID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
