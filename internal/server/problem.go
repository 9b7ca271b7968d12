package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/services"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound       = "https://ipscan.dev/problems/not-found"
	ProblemTypeBadRequest     = "https://ipscan.dev/problems/bad-request"
	ProblemTypeValidation     = "https://ipscan.dev/problems/validation"
	ProblemTypeInternal       = "https://ipscan.dev/problems/internal-error"
	ProblemTypeScanInProgress = "https://ipscan.dev/problems/scan-in-progress"
	ProblemTypeUnavailable    = "https://ipscan.dev/problems/unavailable"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	})
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: instance,
	})
}

// Conflict writes a 409 problem response.
func Conflict(w http.ResponseWriter, problemType, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     problemType,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	})
}

// Unavailable writes a 503 problem response.
func Unavailable(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeUnavailable,
		Title:    "Service Unavailable",
		Status:   http.StatusServiceUnavailable,
		Detail:   detail,
		Instance: instance,
	})
}

// WriteError maps err onto a problem response. Validation failures become
// 400, a running scan 409, missing records 404; anything else is a 500 whose
// detail does not leak the underlying error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	instance := r.URL.Path
	var ve *scanner.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteProblem(w, Problem{
			Type:     ProblemTypeValidation,
			Title:    "Bad Request",
			Status:   http.StatusBadRequest,
			Detail:   ve.Error(),
			Instance: instance,
		})
	case errors.Is(err, scanner.ErrScanInProgress):
		Conflict(w, ProblemTypeScanInProgress, err.Error(), instance)
	case errors.Is(err, services.ErrNotFound):
		NotFound(w, err.Error(), instance)
	default:
		InternalError(w, "internal error", instance)
	}
}
