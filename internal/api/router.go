package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.HandleFunc("/", h.Welcome).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/trust/balance", h.GetBalance).Methods("GET")

	api.HandleFunc("/loans", h.ListLoans).Methods("GET")
	api.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	api.HandleFunc("/loans/user/{userId}", h.ListUserLoans).Methods("GET")
	api.HandleFunc("/loans/{id}/collect", h.CollectLoan).Methods("PUT")
	api.HandleFunc("/loans/{id}", h.UpdateLoan).Methods("PUT")
	api.HandleFunc("/loans/{id}", h.DeleteLoan).Methods("DELETE")

	api.HandleFunc("/expenses", h.ListExpenses).Methods("GET")
	api.HandleFunc("/expenses", h.CreateExpense).Methods("POST")
	api.HandleFunc("/expenses/{id}", h.DeleteExpense).Methods("DELETE")

	api.HandleFunc("/donations", h.ListDonations).Methods("GET")
	api.HandleFunc("/donations", h.CreateDonation).Methods("POST")
	api.HandleFunc("/donations/{id}", h.DeleteDonation).Methods("DELETE")

	api.HandleFunc("/users/{userId}/role", h.GetUserRole).Methods("GET")

	return r
}
