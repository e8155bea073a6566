package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vantagesec/socqa/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorToHTTP maps domain errors to HTTP status codes
func ErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var resErr *domain.ResourceUnavailableError
	switch {
	case errors.Is(err, domain.ErrIngestInProgress):
		return http.StatusConflict
	case errors.As(err, &resErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	status := ErrorToHTTP(err)
	Error(w, status, err.Error())
}
