package create

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/onchainlab/subscription-ledger/internal/http/middlewarectx"
	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/models"
	services "github.com/onchainlab/subscription-ledger/internal/services/subscription"
	"github.com/onchainlab/subscription-ledger/internal/storage"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Create(ctx context.Context, owner address.Address, req models.CreateRequest) (address.Address, *models.Record, error) {
	args := m.Called(ctx, owner, req)
	rec, _ := args.Get(1).(*models.Record)
	return args.Get(0).(address.Address), rec, args.Error(2)
}

func testOwner() address.Address {
	var owner address.Address
	copy(owner[:], []byte("owner-key-owner-key-owner-key-00"))
	return owner
}

func doRequest(t *testing.T, service Service, body string, withOwner bool) *httptest.ResponseRecorder {
	t.Helper()
	handler := New(slog.New(slog.DiscardHandler), service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(body))
	if withOwner {
		ctx := context.WithValue(req.Context(), middlewarectx.Owner, testOwner())
		req = req.WithContext(ctx)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCreateHandler_Success(t *testing.T) {
	owner := testOwner()
	addr := address.Derive(owner, 1)
	rec := &models.Record{Owner: owner, PlanID: 1, Duration: 3600, Amount: 100, Active: true}

	service := new(mockService)
	service.On("Create", mock.Anything, owner,
		models.CreateRequest{PlanID: 1, DurationSeconds: 3600, Amount: 100}).
		Return(addr, rec, nil)

	rr := doRequest(t, service, `{"plan_id":1,"duration_seconds":3600,"amount":100}`, true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"OK"`)
	assert.Contains(t, rr.Body.String(), addr.String())
	service.AssertExpectations(t)
}

func TestCreateHandler_InvalidJSON(t *testing.T) {
	rr := doRequest(t, new(mockService), `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateHandler_NoOwnerInContext(t *testing.T) {
	rr := doRequest(t, new(mockService), `{"plan_id":1}`, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "address already in use", err: storage.ErrAlreadyInUse, wantStatus: http.StatusConflict},
		{name: "unknown plan", err: services.ErrUnknownPlan, wantStatus: http.StatusConflict},
		{name: "insufficient funds", err: storage.ErrInsufficientFunds, wantStatus: http.StatusPaymentRequired},
		{name: "internal error", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(mockService)
			service.On("Create", mock.Anything, mock.Anything, mock.Anything).
				Return(address.Address{}, nil, tt.err)

			rr := doRequest(t, service, `{"plan_id":1,"duration_seconds":3600,"amount":100}`, true)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
