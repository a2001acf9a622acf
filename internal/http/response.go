package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/service"
)

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	respondJSON(w, status, envelope{Status: "success", Message: message, Data: data})
}

// respondError uses "fail" for client errors and "error" for server errors.
func respondError(w http.ResponseWriter, status int, message string) {
	kind := "fail"
	if status >= 500 {
		kind = "error"
	}
	respondJSON(w, status, errorEnvelope{Status: kind, Message: message})
}

// handleServiceError maps service errors to HTTP statuses. Unknown errors are
// logged and reported with the fallback message only.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, clientMessage(err))
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrIllegalTransition):
		respondError(w, http.StatusBadRequest, clientMessage(err))
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, service.ErrConflict):
		log.Warn("request lost a concurrent update", "error", err)
		respondError(w, http.StatusInternalServerError, "Concurrent update, please try again")
	default:
		log.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func clientMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
	if msg == "" {
		return msg
	}
	r := []rune(msg)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
