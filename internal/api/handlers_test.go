package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

const token = "secret"

type testServer struct {
	router  http.Handler
	catalog *store.CatalogStore
	ledger  *store.LedgerStore
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	ctx := context.Background()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	catalog, err := store.NewCatalogStore(ctx, backend)
	require.NoError(t, err)
	ledger, err := store.NewLedgerStore(ctx, backend)
	require.NoError(t, err)

	log, _ := logtest.NewNullLogger()
	return &testServer{
		router:  NewRouter(NewHandler(catalog, ledger, token, log)),
		catalog: catalog,
		ledger:  ledger,
	}
}

func (s *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, "secret")
	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListOffersReturnsStats(t *testing.T) {
	s := newTestServer(t, token)
	ctx := context.Background()
	require.NoError(t, s.catalog.Create(ctx, "B", domain.Offer{Body: "b"}))
	require.NoError(t, s.catalog.Create(ctx, "A", domain.Offer{Body: "a"}))
	for i := 0; i < 3; i++ {
		_, err := s.catalog.IncrementView(ctx, "A")
		require.NoError(t, err)
	}

	rec := s.do(http.MethodGet, "/api/v1/offers", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.CatalogStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []domain.OfferStat{{Name: "B", Views: 0}, {Name: "A", Views: 3}}, stats.Offers)
	assert.Equal(t, int64(3), stats.Total)
}

func TestGetAndDeleteOffer(t *testing.T) {
	s := newTestServer(t, token)
	require.NoError(t, s.catalog.Create(context.Background(), "Slot 1", domain.Offer{Body: "x", ButtonLabel: "Go"}))

	rec := s.do(http.MethodGet, "/api/v1/offers/Slot%201", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var offer domain.Offer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offer))
	assert.Equal(t, "Slot 1", offer.Name)
	assert.Equal(t, "Go", offer.ButtonLabel)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/offers/Slot%201", token).Code)
	assert.False(t, s.catalog.Exists("Slot 1"))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/offers/Slot%201", token).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/offers/Slot%201", token).Code)
}

func TestGetAccount(t *testing.T) {
	s := newTestServer(t, token)
	_, err := s.ledger.Get(context.Background(), 7)
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/api/v1/accounts/7", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var acc domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, int64(7), acc.UserID)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/accounts/8", token).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/accounts/abc", token).Code)

	rec = s.do(http.MethodGet, "/api/v1/accounts", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestTokenRequired(t *testing.T) {
	s := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/offers", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/offers", "wrong").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/offers", "secret").Code)
}

func TestAdminAPIDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.catalog.Create(ctx, "Slot1", domain.Offer{Body: "x"}))
	_, err := s.ledger.Get(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/offers/Slot1", "").Code)
	assert.True(t, s.catalog.Exists("Slot1"))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/accounts", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/accounts/7", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
}
