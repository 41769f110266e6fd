package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dinein-service/internal/middleware"
	"dinein-service/pkg/response"
)

const maxBodyBytes = 1 << 20

var errMissingParam = errors.New("missing param")

func readPathInt64(r *http.Request, key string) (int64, error) {
	value := strings.TrimSpace(readPathString(r, key))
	if value == "" {
		return 0, errMissingParam
	}
	out, err := strconv.ParseInt(value, 10, 64)
	if err != nil || out <= 0 {
		return 0, errors.New("invalid id")
	}
	return out, nil
}

// pathID reads a positive id path parameter, writing a 400 when it is missing or malformed.
func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := readPathInt64(r, key)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid "+key)
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional positive integer query parameter.
func queryInt64(r *http.Request, key string) (*int64, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return nil, nil
	}
	out, err := strconv.ParseInt(value, 10, 64)
	if err != nil || out <= 0 {
		return nil, errors.New("invalid " + key)
	}
	return &out, nil
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	return true
}

func currentUserID(r *http.Request) *int64 {
	if ac, ok := middleware.GetAuthContext(r.Context()); ok {
		id := ac.UserID
		return &id
	}
	return nil
}

func actingAdminID(r *http.Request) int64 {
	if ac, ok := middleware.GetAuthContext(r.Context()); ok && ac.IsAdmin() {
		return ac.UserID
	}
	return 0
}

func readPathString(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
