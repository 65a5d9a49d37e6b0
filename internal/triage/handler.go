package triage

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes the classifier over HTTP.
type Handler struct {
	classifier *Classifier
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

// NewHandler creates a triage handler.
func NewHandler(classifier *Classifier, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{classifier: classifier, metrics: m, logger: logger}
}

// ClassifyRequest is the body of POST /v1/triage/classify.
type ClassifyRequest struct {
	Symptoms []string `json:"symptoms"`
}

// Classify handles POST /v1/triage/classify
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	if len(NormalizeSet(req.Symptoms)) == 0 {
		respond.Error(w, r, h.logger, apperr.Validation("symptoms array is required"))
		return
	}

	result := h.classifier.Triage(req.Symptoms)
	h.metrics.ObserveTriage(string(result.PriorityLevel))
	h.logger.Debug("symptoms classified",
		"diagnosis", result.Diagnosis,
		"priority_score", result.PriorityScore,
	)
	respond.JSON(w, http.StatusOK, result)
}
