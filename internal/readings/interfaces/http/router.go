package http

import (
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the public API: readings routes, the alert stream,
// health and metrics, wrapped with CORS and panic recovery.
func NewRouter(handler *Handler, stream *StreamHandler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	r := mux.NewRouter()
	if handler != nil {
		handler.Register(r)
	}
	if stream != nil {
		r.Handle("/api/stream/alerts", stream).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Accept", "Authorization", "X-Requested-With"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(cors(r))
}
