package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"product-recommender/internal/common/database"
	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/models"
)

const maxBodyBytes = 64 << 10

// Pipeline runs one recommendation request.
type Pipeline interface {
	Run(ctx context.Context, q models.Query) (*models.Recommendation, error)
}

type Handler struct {
	pipeline     Pipeline
	dependencies []database.Pinger
	logger       logger.Logger
}

func NewHandler(pipeline Pipeline, dependencies []database.Pinger, log logger.Logger) *Handler {
	return &Handler{
		pipeline:     pipeline,
		dependencies: dependencies,
		logger:       log.With(map[string]interface{}{"component": "api"}),
	}
}

// Router registers every endpoint.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/v1/recommendations", h.handleRecommend).Methods(http.MethodPost)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, FailureResponse{Error: ErrorBody{
			Code:    string(errors.ErrCodeInvalidQuery),
			Message: "Request body must be a JSON object with a query field.",
		}})
		return
	}

	q := models.NewQueryWithID(req.ID, req.Query)
	rec, err := h.pipeline.Run(r.Context(), q)
	if err != nil {
		var failure *errors.PipelineFailure
		if !stderrors.As(err, &failure) {
			h.logger.Error("pipeline returned an unclassified error", map[string]interface{}{
				"requestId": q.ID,
				"error":     err.Error(),
			})
			failure = errors.NewFailureHandler(nil).Handle(q.ID, "unknown", err)
		}
		writeJSON(w, failure.HTTPStatus(), FailureResponse{
			RequestID: q.ID,
			Error: ErrorBody{
				Code:      string(failure.Code),
				Message:   failure.Message,
				Retryable: failure.Retryable,
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, RecommendResponse{
		RequestID:      q.ID,
		Recommendation: rec,
		SpeechText:     rec.SpeechText(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := database.CheckAll(ctx, h.dependencies...)
	if len(failures) > 0 {
		details := make(map[string]string, len(failures))
		for name, err := range failures {
			details[name] = err.Error()
		}
		h.logger.Warn("readiness check failed", map[string]interface{}{"failures": details})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": details,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
