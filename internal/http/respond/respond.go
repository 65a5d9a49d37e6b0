package respond

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error maps err to a status and kind. Domain errors are returned with their
// message; anything else is logged and hidden behind a generic message.
func Error(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindInternal || kind == apperr.KindUnavailable {
		logging.FromContext(r.Context(), logger).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal server error"
		if kind == apperr.KindUnavailable {
			msg = "outcome could not be confirmed; refresh and retry"
		}
	}
	JSON(w, status, ErrorBody{Error: msg, Kind: kind})
}

// BadRequest writes a validation error without going through apperr.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: msg, Kind: apperr.KindValidation})
}

// Unauthorized writes a 401 for missing or invalid credentials.
func Unauthorized(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusUnauthorized, ErrorBody{Error: msg, Kind: apperr.KindAuthorization})
}
