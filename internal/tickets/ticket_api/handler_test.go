package ticket_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/models"
	ticketdb "ln-ticketing/internal/tickets/db"
	"ln-ticketing/internal/tickets/service"
	"ln-ticketing/internal/tickets/ticket_api"
	"ln-ticketing/internal/utils"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetTicketByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockDBLayer) CheckIn(ctx context.Context, ticketID string) (bool, error) {
	args := m.Called(ctx, ticketID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) MaxSerialByType(ctx context.Context, ticketType string) (int, error) {
	args := m.Called(ctx, ticketType)
	return args.Int(0), args.Error(1)
}

func (m *MockDBLayer) ListTicketsWithUsers(ctx context.Context) ([]models.TicketWithUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TicketWithUser), args.Error(1)
}

func (m *MockDBLayer) CreateInviteTickets(ctx context.Context, invites []models.Invite, ticketType string) ([]models.InviteResult, error) {
	args := m.Called(ctx, invites, ticketType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InviteResult), args.Error(1)
}

type noopMailer struct{}

func (noopMailer) SendTicketEmail(ctx context.Context, email, ticketID, ticketType string, serial int) error {
	return nil
}

func newTestHandler(mockDB *MockDBLayer) *ticket_api.Handler {
	log := logger.NewLogger()
	svc := service.NewTicketService(mockDB, noopMailer{}, nil, "", "pizza", log)
	return ticket_api.NewHandler(svc, log)
}

func TestCheckinTicketEndpoint(t *testing.T) {
	t.Run("first scan", func(t *testing.T) {
		mockDB := new(MockDBLayer)
		mockDB.On("CheckIn", mock.Anything, "t1").Return(false, nil)
		handler := newTestHandler(mockDB)

		body := bytes.NewBufferString(`{"ticket_id":"t1"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/ticket/checkin", body)
		rec := httptest.NewRecorder()

		handler.CheckinTicket(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var envelope utils.APIResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		assert.True(t, envelope.Status)

		data, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		var resp models.CheckInResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.False(t, resp.AlreadyCheckedIn)
		assert.True(t, resp.CheckIn)
	})

	t.Run("unknown ticket is 404", func(t *testing.T) {
		mockDB := new(MockDBLayer)
		mockDB.On("CheckIn", mock.Anything, "missing").Return(false, ticketdb.ErrTicketNotFound)
		handler := newTestHandler(mockDB)

		body := bytes.NewBufferString(`{"ticket_id":"missing"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/ticket/checkin", body)
		rec := httptest.NewRecorder()

		handler.CheckinTicket(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing ticket id is 400", func(t *testing.T) {
		handler := newTestHandler(new(MockDBLayer))

		body := bytes.NewBufferString(`{}`)
		req := httptest.NewRequest(http.MethodPost, "/api/ticket/checkin", body)
		rec := httptest.NewRecorder()

		handler.CheckinTicket(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTicketEndpoint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mockDB := new(MockDBLayer)
		mockDB.On("GetTicketByTicketID", mock.Anything, "t1").
			Return(&models.Ticket{TicketID: "t1", Type: "pizza", Serial: 3}, nil)
		handler := newTestHandler(mockDB)

		req := httptest.NewRequest(http.MethodGet, "/api/ticket?ticketId=t1", nil)
		rec := httptest.NewRecorder()

		handler.GetTicket(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ticket_id":"t1"`)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		mockDB := new(MockDBLayer)
		mockDB.On("GetTicketByTicketID", mock.Anything, "missing").
			Return(nil, ticketdb.ErrTicketNotFound)
		handler := newTestHandler(mockDB)

		req := httptest.NewRequest(http.MethodGet, "/api/ticket?ticketId=missing", nil)
		rec := httptest.NewRecorder()

		handler.GetTicket(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing ticketId", func(t *testing.T) {
		handler := newTestHandler(new(MockDBLayer))

		req := httptest.NewRequest(http.MethodGet, "/api/ticket", nil)
		rec := httptest.NewRecorder()

		handler.GetTicket(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTicketCountEndpoint(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("MaxSerialByType", mock.Anything, "pizza").Return(21, nil)
	handler := newTestHandler(mockDB)

	req := httptest.NewRequest(http.MethodGet, "/api/ticket/count", nil)
	rec := httptest.NewRecorder()

	handler.GetTicketCount(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), `"totalTickets":21`)
}

func TestListTicketsEndpoint(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("ListTicketsWithUsers", mock.Anything).Return([]models.TicketWithUser{
		{Ticket: models.Ticket{TicketID: "t1", Type: "pizza", Serial: 1}, Fullname: "Ana", Email: "ana@example.com"},
	}, nil)
	handler := newTestHandler(mockDB)

	req := httptest.NewRequest(http.MethodGet, "/api/ticket/all", nil)
	rec := httptest.NewRecorder()

	handler.ListTickets(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ana@example.com")
}

func TestCreateInviteEndpoint(t *testing.T) {
	mockDB := new(MockDBLayer)
	invites := []models.Invite{{Fullname: "Ana", Email: "ana@example.com"}}
	mockDB.On("CreateInviteTickets", mock.Anything, invites, "pizza").
		Return([]models.InviteResult{{Email: "ana@example.com", TicketID: "t1"}}, nil)
	handler := newTestHandler(mockDB)

	body := bytes.NewBufferString(`{"action":"invite","list":[{"fullname":"Ana","email":"ana@example.com"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/ticket/invite", body)
	rec := httptest.NewRecorder()

	handler.CreateInvite(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "t1")
}
