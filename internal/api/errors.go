package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ValidationError is a rejected request body. It is the only error that maps
// to a 4xx response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// errEmptyText is returned when the request carries no text.
var errEmptyText = &ValidationError{Message: "Text cannot be empty"}

// statusFor maps an error to its HTTP status. Anything that is not a
// ValidationError is a server-side failure.
func statusFor(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeDetail writes {"detail": message} with the given status.
func writeDetail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
