package middlewarectx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/jwt"
)

func TestJWTMiddleware_ValidToken(t *testing.T) {
	maker := jwt.NewJWTMaker("test_secret_key", time.Hour)
	var owner address.Address
	copy(owner[:], []byte("owner-key-owner-key-owner-key-00"))

	token, err := maker.GenerateToken(owner.String())
	require.NoError(t, err)

	var gotOwner address.Address
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwner, gotOK = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTMiddleware(maker, slog.New(slog.DiscardHandler))(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, gotOK)
	assert.Equal(t, owner, gotOwner)
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	maker := jwt.NewJWTMaker("test_secret_key", time.Hour)
	wrongMaker := jwt.NewJWTMaker("wrong_secret_key", time.Hour)

	var owner address.Address
	copy(owner[:], []byte("owner-key-owner-key-owner-key-00"))

	wrongKeyToken, err := wrongMaker.GenerateToken(owner.String())
	require.NoError(t, err)
	badAddressToken, err := maker.GenerateToken("not-an-address")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "no bearer prefix", header: "Token abc"},
		{name: "garbage token", header: "Bearer garbage"},
		{name: "wrong signing key", header: "Bearer " + wrongKeyToken},
		{name: "invalid address in claims", header: "Bearer " + badAddressToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not be called")
			})
			handler := JWTMiddleware(maker, slog.New(slog.DiscardHandler))(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

// syncBuffer — потокобезопасный приёмник для текстового слог-хендлера.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJWTMiddleware_RequestScopedLogAttributes(t *testing.T) {
	maker := jwt.NewJWTMaker("test_secret_key", time.Hour)

	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not be called")
	})
	handler := JWTMiddleware(maker, logger)(next)

	const requests = 8
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	// Атрибуты запроса не должны накапливаться на общем логгере:
	// каждая строка несёт ровно один op и один request_id.
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, requests)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "op="), line)
		assert.Equal(t, 1, strings.Count(line, "request_id="), line)
	}
}
