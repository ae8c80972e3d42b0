package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/jobs"
	"github.com/punchamoorthee/coopledger/internal/models"
	"github.com/punchamoorthee/coopledger/internal/operations"
	"github.com/punchamoorthee/coopledger/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// IntegrityQueue accepts verification runs for the background worker.
type IntegrityQueue interface {
	EnqueueLedgerVerify(ctx context.Context, payload jobs.LedgerVerifyPayload) (*asynq.TaskInfo, error)
}

type Handler struct {
	ledger   *service.Service
	ops      *operations.Operations
	queue    IntegrityQueue
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler wires the HTTP layer. queue may be nil, in which case integrity runs are refused.
func NewHandler(ledger *service.Service, ops *operations.Operations, queue IntegrityQueue, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger:   ledger,
		ops:      ops,
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the ledger routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	const account = "/accounts/{type:member_account|coop_account}/{id:[0-9]+}"
	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc(account, h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc(account+"/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc(account+"/statement", h.GetStatementHandler).Methods(http.MethodGet)
	v1.HandleFunc(account+"/integrity", h.VerifyAccountHandler).Methods(http.MethodGet)

	v1.HandleFunc("/transactions", h.PostTransactionHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/double-entry", h.PostDoubleEntryHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransactionHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id:[0-9]+}/reverse", h.ReverseTransactionHandler).Methods(http.MethodPost)
	v1.HandleFunc("/references/{type}/{id}", h.ListByReferenceHandler).Methods(http.MethodGet)

	v1.HandleFunc("/operations/savings/approve", h.ApproveSavingHandler).Methods(http.MethodPost)
	v1.HandleFunc("/operations/withdrawals/disburse", h.DisburseWithdrawalHandler).Methods(http.MethodPost)
	v1.HandleFunc("/operations/loans/disburse", h.DisburseLoanHandler).Methods(http.MethodPost)
	v1.HandleFunc("/operations/loans/repay", h.RecordLoanRepaymentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/operations/journal-entries", h.PostJournalEntryHandler).Methods(http.MethodPost)
	v1.HandleFunc("/operations/fees", h.ChargeFeeHandler).Methods(http.MethodPost)

	v1.HandleFunc("/integrity/runs", h.EnqueueIntegrityRunHandler).Methods(http.MethodPost)
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and runs its validation tags. It writes the error response
// itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Validation failed", Fields: fields})
		return false
	}
	return true
}

// respondWithLedgerError maps ledger outcomes to status codes. Storage failures are logged and
// answered without detail.
func (h *Handler) respondWithLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		respondWithError(w, status, "Internal Server Error")
		return
	}
	respondWithError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyReversed), errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrAccountExists), errors.Is(err, asynq.ErrDuplicateTask):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrUnbalancedDoubleEntry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func accountRef(r *http.Request) (domain.AccountRef, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return domain.AccountRef{}, fmt.Errorf("%w: malformed account id", domain.ErrInvalidRequest)
	}
	ref := domain.AccountRef{Kind: domain.AccountKind(vars["type"]), ID: id}
	return ref, ref.Validate()
}

func transactionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed transaction id", domain.ErrInvalidRequest)
	}
	return id, nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
