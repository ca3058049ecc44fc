package api

import (
	"net/http"

	"github.com/safar/smartgrocer/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Server) payDues(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID        int64           `json:"userId"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
		PaymentMethod string          `json:"paymentMethod"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	userID, err := targetUser(claimsFrom(r.Context()), body.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entry, err := store.PayDues(r.Context(), s.db, store.PayDuesRequest{
		UserID:      userID,
		Amount:      body.Amount,
		Method:      body.PaymentMethod,
		Description: body.Description,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) myTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := store.ListTransactions(r.Context(), s.db, claimsFrom(r.Context()).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (s *Server) userTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	transactions, err := store.ListTransactions(r.Context(), s.db, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (s *Server) debtors(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListDebtors(r.Context(), s.db)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}
