package api

import (
	"net/http"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/jobs"
	"github.com/punchamoorthee/coopledger/internal/models"
	"github.com/punchamoorthee/coopledger/internal/operations"
)

func (h *Handler) ApproveSavingHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SavingApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.ops.ApproveSaving(r.Context(), operations.Saving{
		ID:              req.SavingID,
		MemberAccountID: req.MemberAccountID,
		Amount:          req.Amount,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}, req.ApprovedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, row)
}

func (h *Handler) DisburseWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.ops.DisburseWithdrawal(r.Context(), operations.Withdrawal{
		RequestID:       req.RequestID,
		MemberAccountID: req.MemberAccountID,
		Amount:          req.Amount,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}, req.DisbursedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, row)
}

func loanMovement(req models.LoanMovementRequest) operations.LoanMovement {
	return operations.LoanMovement{
		LoanID:          req.LoanID,
		MemberAccountID: req.MemberAccountID,
		CoopAccountID:   req.CoopAccountID,
		Amount:          req.Amount,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}
}

func (h *Handler) DisburseLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoanMovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.ops.DisburseLoan(r.Context(), loanMovement(req), req.RecordedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *Handler) RecordLoanRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoanMovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.ops.RecordLoanRepayment(r.Context(), loanMovement(req), req.RecordedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *Handler) PostJournalEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.JournalEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.ops.PostJournalEntry(r.Context(), operations.JournalEntry{
		ID:              req.EntryID,
		Debit:           req.Debit,
		Credit:          req.Credit,
		Amount:          req.Amount,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}, req.PostedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *Handler) ChargeFeeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.ops.ChargeFee(r.Context(), operations.Fee{
		MemberAccountID: req.MemberAccountID,
		Amount:          req.Amount,
		Reference:       domain.ReferenceRef{Type: domain.ReferenceType(req.ReferenceType), ID: req.ReferenceID},
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}, req.ChargedBy)
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, row)
}

func (h *Handler) EnqueueIntegrityRunHandler(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Job queue is not configured")
		return
	}
	var req models.IntegrityRunRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.queue.EnqueueLedgerVerify(r.Context(), jobs.LedgerVerifyPayload{
		Kind:    domain.AccountKind(req.AccountType),
		Account: req.Account,
	})
	if err != nil {
		h.respondWithLedgerError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, models.QueuedResponse{TaskID: info.ID, Queue: info.Queue})
}
