package renew

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
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

func (m *mockService) Renew(ctx context.Context, owner address.Address, planID uint64) (*models.Record, error) {
	args := m.Called(ctx, owner, planID)
	rec, _ := args.Get(0).(*models.Record)
	return rec, args.Error(1)
}

func testOwner() address.Address {
	var owner address.Address
	copy(owner[:], []byte("owner-key-owner-key-owner-key-00"))
	return owner
}

func doRequest(t *testing.T, service Service, planID string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Post("/subscriptions/{plan_id}/renew", New(slog.New(slog.DiscardHandler), service).ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/"+planID+"/renew", nil)
	ctx := context.WithValue(req.Context(), middlewarectx.Owner, testOwner())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func TestRenewHandler_Success(t *testing.T) {
	owner := testOwner()
	rec := &models.Record{Owner: owner, PlanID: 7, StartTime: 1700003600, Active: true}

	service := new(mockService)
	service.On("Renew", mock.Anything, owner, uint64(7)).Return(rec, nil)

	rr := doRequest(t, service, "7")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"OK"`)
	service.AssertExpectations(t)
}

func TestRenewHandler_InvalidPlanID(t *testing.T) {
	rr := doRequest(t, new(mockService), "abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRenewHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: storage.ErrRecordNotFound, wantStatus: http.StatusNotFound},
		{name: "inactive", err: services.ErrInactiveSubscription, wantStatus: http.StatusConflict},
		{name: "not yet expired", err: services.ErrNotYetExpired, wantStatus: http.StatusConflict},
		{name: "insufficient funds", err: storage.ErrInsufficientFunds, wantStatus: http.StatusPaymentRequired},
		{name: "unauthorized", err: services.ErrUnauthorized, wantStatus: http.StatusUnauthorized},
		{name: "internal error", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(mockService)
			service.On("Renew", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rr := doRequest(t, service, "7")
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
