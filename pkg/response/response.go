package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"dinein-service/internal/dining"
)

const internalMessage = "Internal server error"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, envelope{Success: true, Data: data})
}

func Error(w http.ResponseWriter, status int, errCode string, message string) {
	JSON(w, status, envelope{Error: errCode, Message: message})
}

// DomainError writes err with the status its kind maps to. The error field carries the kind and
// code the specific reason; internal details never reach the client.
func DomainError(w http.ResponseWriter, err error) {
	var de *dining.Error
	if !errors.As(err, &de) || de.Kind == dining.KindInternal {
		Error(w, http.StatusInternalServerError, string(dining.KindInternal), internalMessage)
		return
	}
	JSON(w, de.StatusCode(), envelope{
		Error:   string(de.Kind),
		Code:    de.Code,
		Message: de.Message,
	})
}
