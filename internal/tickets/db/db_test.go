package db_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ln-ticketing/internal/models"
	"ln-ticketing/internal/tickets/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil), (*models.Ticket)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func insertTicket(t *testing.T, store *db.DB, ticketType string, serial int, userID string) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		TicketID:  uuid.NewString(),
		UserID:    userID,
		Type:      ticketType,
		Serial:    serial,
		CreatedAt: time.Now(),
	}
	_, err := store.Bun.NewInsert().Model(&ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket
}

func TestGetTicketByTicketID(t *testing.T) {
	store := setupTestDB(t)

	ticket := insertTicket(t, store, "pizza", 1, uuid.NewString())

	got, err := store.GetTicketByTicketID(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.TicketID, got.TicketID)
	assert.False(t, got.CheckIn)

	_, err = store.GetTicketByTicketID(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestCheckInIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := insertTicket(t, store, "pizza", 1, uuid.NewString())

	already, err := store.CheckIn(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.False(t, already)

	// Second scan reports the repeat without flipping anything back.
	already, err = store.CheckIn(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.True(t, already)

	got, err := store.GetTicketByTicketID(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.True(t, got.CheckIn)

	_, err = store.CheckIn(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestCheckInConcurrent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := insertTicket(t, store, "pizza", 1, uuid.NewString())

	const scans = 8
	firsts := make([]bool, scans)
	errs := make([]error, scans)

	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			already, err := store.CheckIn(ctx, ticket.TicketID)
			firsts[i] = !already
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < scans; i++ {
		require.NoError(t, errs[i])
		if firsts[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMaxSerialByType(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	count, err := store.MaxSerialByType(ctx, "pizza")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	userID := uuid.NewString()
	insertTicket(t, store, "pizza", 1, userID)
	insertTicket(t, store, "pizza", 2, userID)
	insertTicket(t, store, "general", 40, userID)

	count, err = store.MaxSerialByType(ctx, "pizza")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListTicketsWithUsers(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := models.User{
		ID:        uuid.NewString(),
		Email:     "ana@example.com",
		FullName:  "Ana",
		CreatedAt: time.Now(),
	}
	_, err := store.Bun.NewInsert().Model(&user).Exec(ctx)
	require.NoError(t, err)

	insertTicket(t, store, "pizza", 1, user.ID)
	insertTicket(t, store, "pizza", 2, user.ID)

	rows, err := store.ListTicketsWithUsers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana", rows[0].Fullname)
	assert.Equal(t, "ana@example.com", rows[0].Email)
}

func TestCreateInviteTickets(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	invites := []models.Invite{
		{Fullname: "Ana", Email: "ana@example.com"},
		{Fullname: "Bob", Email: "bob@example.com"},
	}

	results, err := store.CreateInviteTickets(ctx, invites, "pizza")
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, result := range results {
		assert.Equal(t, invites[i].Email, result.Email)

		ticket, err := store.GetTicketByTicketID(ctx, result.TicketID)
		require.NoError(t, err)
		// Invites sit outside the paid sequence and any order.
		assert.Equal(t, 0, ticket.Serial)
		assert.Empty(t, ticket.OrderID)
	}

	// Inviting an existing purchaser reuses their user row.
	again, err := store.CreateInviteTickets(ctx, []models.Invite{{Fullname: "Ana Prime", Email: "ana@example.com"}}, "pizza")
	require.NoError(t, err)
	require.Len(t, again, 1)

	userCount, err := store.Bun.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, userCount)

	var user models.User
	require.NoError(t, store.Bun.NewSelect().Model(&user).Where("email = ?", "ana@example.com").Scan(ctx))
	assert.Equal(t, "Ana Prime", user.FullName)
}
