package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/satya6366/trust-ledger/internal/domain"
	"github.com/satya6366/trust-ledger/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trust_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	service *service.TrustService
	log     *zap.SugaredLogger
}

func NewHandler(svc *service.TrustService, log *zap.SugaredLogger) *Handler {
	return &Handler{service: svc, log: log}
}

// deleteRequest carries the authorization subject for delete endpoints. Any
// other field a caller sends (such as an amount) is discarded: deletes
// always settle against the stored record.
type deleteRequest struct {
	UserID string `json:"user_id"`
}

// collectRequest is the body of the loan collect transition. The credited
// amounts come from the stored loan, never from the request.
type collectRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Trust Ledger API. Use /api endpoints to interact.",
	}, "GET", "/")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/trust/balance")
		return
	}
	h.respondJSON(w, http.StatusOK, balance, "GET", "/trust/balance")
}

func (h *Handler) GetUserRole(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	role, err := h.service.Role(r.Context(), userID)
	if err != nil {
		h.log.Errorw("role lookup failed", "user_id", userID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch role", "GET", "/users/{userId}/role")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]domain.Role{"role": role}, "GET", "/users/{userId}/role")
}

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.Loans(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/loans")
		return
	}
	h.respondJSON(w, http.StatusOK, loans, "GET", "/loans")
}

func (h *Handler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.LoansByUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/loans/user/{userId}")
		return
	}
	h.respondJSON(w, http.StatusOK, loans, "GET", "/loans/user/{userId}")
}

func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/loans"))
	defer timer.ObserveDuration()

	var req domain.LoanInput
	if !h.decode(w, r, &req, "POST", "/loans") {
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/loans")
		return
	}
	h.respondJSON(w, http.StatusOK, loan, "POST", "/loans")
}

func (h *Handler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", "/loans/{id}"))
	defer timer.ObserveDuration()

	var req domain.LoanUpdate
	if !h.decode(w, r, &req, "PUT", "/loans/{id}") {
		return
	}
	loan, err := h.service.UpdateLoan(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/loans/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, loan, "PUT", "/loans/{id}")
}

func (h *Handler) CollectLoan(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", "/loans/{id}/collect"))
	defer timer.ObserveDuration()

	var req collectRequest
	if !h.decode(w, r, &req, "PUT", "/loans/{id}/collect") {
		return
	}
	loan, err := h.service.CollectLoan(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/loans/{id}/collect")
		return
	}
	h.respondJSON(w, http.StatusOK, loan, "PUT", "/loans/{id}/collect")
}

func (h *Handler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("DELETE", "/loans/{id}"))
	defer timer.ObserveDuration()

	var req deleteRequest
	if !h.decode(w, r, &req, "DELETE", "/loans/{id}") {
		return
	}
	if _, err := h.service.DeleteLoan(r.Context(), mux.Vars(r)["id"], req.UserID); err != nil {
		h.respondServiceError(w, err, "DELETE", "/loans/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Loan deleted"}, "DELETE", "/loans/{id}")
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.service.Expenses(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/expenses")
		return
	}
	h.respondJSON(w, http.StatusOK, expenses, "GET", "/expenses")
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/expenses"))
	defer timer.ObserveDuration()

	var req domain.EntryInput
	if !h.decode(w, r, &req, "POST", "/expenses") {
		return
	}
	expense, err := h.service.CreateExpense(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/expenses")
		return
	}
	h.respondJSON(w, http.StatusOK, expense, "POST", "/expenses")
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("DELETE", "/expenses/{id}"))
	defer timer.ObserveDuration()

	var req deleteRequest
	if !h.decode(w, r, &req, "DELETE", "/expenses/{id}") {
		return
	}
	if _, err := h.service.DeleteExpense(r.Context(), mux.Vars(r)["id"], req.UserID); err != nil {
		h.respondServiceError(w, err, "DELETE", "/expenses/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted"}, "DELETE", "/expenses/{id}")
}

func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.service.Donations(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/donations")
		return
	}
	h.respondJSON(w, http.StatusOK, donations, "GET", "/donations")
}

func (h *Handler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/donations"))
	defer timer.ObserveDuration()

	var req domain.EntryInput
	if !h.decode(w, r, &req, "POST", "/donations") {
		return
	}
	donation, err := h.service.CreateDonation(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/donations")
		return
	}
	h.respondJSON(w, http.StatusOK, donation, "POST", "/donations")
}

func (h *Handler) DeleteDonation(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("DELETE", "/donations/{id}"))
	defer timer.ObserveDuration()

	var req deleteRequest
	if !h.decode(w, r, &req, "DELETE", "/donations/{id}") {
		return
	}
	if _, err := h.service.DeleteDonation(r.Context(), mux.Vars(r)["id"], req.UserID); err != nil {
		h.respondServiceError(w, err, "DELETE", "/donations/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Donation deleted"}, "DELETE", "/donations/{id}")
}

// Helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, method, endpoint string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", method, endpoint)
		return false
	}
	return true
}

// respondServiceError maps the engine's error taxonomy to transport
// statuses. Expected client-caused outcomes carry their own message;
// anything else is an incident, logged in full and reported generically.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrForbidden):
		h.respondError(w, http.StatusForbidden, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrAlreadyCollected):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	default:
		h.log.Errorw("request failed", "method", method, "endpoint", endpoint, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
