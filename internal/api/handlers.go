package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

// Handler serves the read-mostly admin API over the catalog and ledger.
type Handler struct {
	catalog *store.CatalogStore
	ledger  *store.LedgerStore
	token   string
	log     logrus.FieldLogger
}

// NewHandler creates a handler. An empty token keeps /api/v1 unmounted.
func NewHandler(catalog *store.CatalogStore, ledger *store.LedgerStore, token string, log logrus.FieldLogger) *Handler {
	return &Handler{catalog: catalog, ledger: ledger, token: token, log: log}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListOffersHandler returns per-offer view counts in catalog order and their total.
func (h *Handler) ListOffersHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.catalog.Stats())
}

func (h *Handler) GetOfferHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	offer, ok := h.catalog.Get(name)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Offer not found")
		return
	}
	respondWithJSON(w, http.StatusOK, offer)
}

func (h *Handler) DeleteOfferHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := h.catalog.Remove(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrOfferNotFound):
		respondWithError(w, http.StatusNotFound, "Offer not found")
		return
	case err != nil:
		h.log.WithField("offer", name).WithError(err).Error("offer remove failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.log.WithField("offer", name).Info("offer removed via api")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts := h.ledger.Accounts()
	if accounts == nil {
		accounts = []domain.Account{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	account, ok := h.ledger.Lookup(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Account not found")
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
