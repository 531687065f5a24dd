package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"hydro-cloud/internal/readings/application"
	readings "hydro-cloud/internal/readings/domain"
	"hydro-cloud/internal/readings/interfaces/payload"
)

const maxBodyBytes = 1 << 20

// Handler provides the sensor ingestion and history endpoints.
type Handler struct {
	service *application.Service
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("readings handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, logger: logger}, nil
}

// Register mounts the handler routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/sensor", h.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/readings/{unitId}", h.handleRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/readings/{unitId}/export", h.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{unitId}", h.handleAlerts).Methods(http.MethodGet)
}

type ingestResponse struct {
	Status         string `json:"status"`
	Classification string `json:"classification"`
}

type readingView struct {
	Timestamp      string             `json:"timestamp"`
	Readings       map[string]float64 `json:"readings"`
	Classification string             `json:"classification"`
}

type historyResponse struct {
	Alerts []readingView `json:"alerts"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	cmd, err := payload.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var schemaErr *payload.SchemaError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusUnprocessableEntity, schemaErr.Detail())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	reading, err := h.service.Ingest(r.Context(), cmd)
	if err != nil {
		switch {
		case errors.Is(err, readings.ErrMissingReadings):
			writeError(w, http.StatusBadRequest, "Missing required readings")
		case errors.Is(err, readings.ErrPHRequired):
			writeError(w, http.StatusBadRequest, "pH reading is required")
		case errors.Is(err, readings.ErrEmptyUnitID), errors.Is(err, readings.ErrZeroTimestamp):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Printf("readings ingest: unit %s: %v", cmd.UnitID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Status:         "OK",
		Classification: string(reading.Classification),
	})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Recent(r.Context(), mux.Vars(r)["unitId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Alerts: toViews(list)})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Alerts(r.Context(), mux.Vars(r)["unitId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Alerts: toViews(list)})
}

func toViews(list []readings.Reading) []readingView {
	views := make([]readingView, 0, len(list))
	for _, reading := range list {
		views = append(views, readingView{
			Timestamp:      payload.FormatTimestamp(reading.Timestamp),
			Readings:       reading.Values,
			Classification: string(reading.Classification),
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
