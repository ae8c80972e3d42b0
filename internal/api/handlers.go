package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/models"
)

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.ledger.OpenAccount(r.Context(), req.ToDomain())
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/%d", acct.Ref.Kind, acct.Ref.ID))
	respondWithJSON(w, http.StatusCreated, acct)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	kind := domain.AccountKind(r.URL.Query().Get("type"))
	if kind != "" && !kind.Valid() {
		respondWithError(w, http.StatusBadRequest, "Unknown account type")
		return
	}
	accts, err := h.ledger.ListAccounts(r.Context(), kind)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accts)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ref, err := accountRef(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	acct, err := h.ledger.GetAccount(r.Context(), ref)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ref, err := accountRef(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	balance, err := h.ledger.CurrentBalance(r.Context(), ref)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.BalanceResponse{Account: ref, Balance: balance})
}

// GetStatementHandler serves ?from=&to=. Both bounds accept a date or an RFC 3339 timestamp; a
// bare "to" date covers that whole day.
func (h *Handler) GetStatementHandler(w http.ResponseWriter, r *http.Request) {
	ref, err := accountRef(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := parseBound(q.Get("from"), false)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from: "+err.Error())
		return
	}
	end, err := parseBound(q.Get("to"), true)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid to: "+err.Error())
		return
	}
	stmt, err := h.ledger.Statement(r.Context(), ref, start, end)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stmt)
}

const dateLayout = "2006-01-02"

func parseBound(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

func (h *Handler) VerifyAccountHandler(w http.ResponseWriter, r *http.Request) {
	ref, err := accountRef(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	report, err := h.ledger.VerifyAccount(r.Context(), ref)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (h *Handler) PostTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PostingRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.ledger.Post(r.Context(), req.ToDomain())
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", row.ID))
	respondWithJSON(w, http.StatusCreated, row)
}

func (h *Handler) PostDoubleEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DoubleEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.ledger.PostDoubleEntry(r.Context(), req.ToDomain())
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	row, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, row)
}

func (h *Handler) ReverseTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	var req models.ReverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.ledger.Reverse(r.Context(), id, req.Reason, req.ReversedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", row.ID))
	respondWithJSON(w, http.StatusCreated, row)
}

func (h *Handler) ListByReferenceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rows, err := h.ledger.TransactionsByReference(r.Context(), domain.ReferenceRef{
		Type: domain.ReferenceType(vars["type"]),
		ID:   vars["id"],
	})
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rows)
}
