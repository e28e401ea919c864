package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/apptbook/platform/libs/httpx"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err's kind to a status code. Internal errors are logged and
// answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("request_id", httpx.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: kind.String()})
}

// normalizer is implemented by request bodies that clean up their fields
// before validation.
type normalizer interface {
	normalize()
}

// decode reads a JSON body into dst, normalizes and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid json body: %v", err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.Validation("%s", formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Field(), e.Tag(), e.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
	}
	return strings.Join(msgs, ", ")
}

func logRequest(logger zerolog.Logger, r *http.Request) *zerolog.Event {
	return logger.Info().Str("request_id", httpx.RequestIDFromContext(r.Context()))
}
