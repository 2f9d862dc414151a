package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

type errorBody struct {
	Error      string                   `json:"error"`
	Violations []domain.ValidationError `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError разделяет типы ошибок ядра по HTTP-статусам. Внутренние ошибки наружу не отдаются.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var violations domain.ValidationErrors
	switch {
	case errors.As(err, &violations):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "template validation failed", Violations: violations})
	case errors.Is(err, domain.ErrInvalidScore):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrTemplateNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrUnitForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrSessionFinalized), errors.Is(err, domain.ErrSessionLocked),
		errors.Is(err, domain.ErrTemplateExists), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrMissingSignature):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
