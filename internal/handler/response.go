package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"smsdispatch/internal/service"
)

// Error codes of the JSON error envelope
const (
	CodeNotFound            = "RESOURCE_NOT_FOUND"
	CodeValidation          = "VALIDATION"
	CodeInvalidJSON         = "INVALID_JSON"
	CodeInvalidState        = "INVALID_STATE"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteCreated writes a 201 Created response with the given data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteOK writes a 200 OK response with the given data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteValidationError writes a 400 Bad Request response with VALIDATION code
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidation, message)
}

// WriteInternalError writes a 500 response without exposing details
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "An internal error occurred")
}

// HandleServiceError maps service layer errors to HTTP responses.
// Unknown errors are logged through the request logger.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound     *service.NotFoundError
		validation   *service.ValidationError
		invalidState *service.InvalidStateError
		insufficient *service.InsufficientCreditsError
		conflict     *service.ConflictError
	)

	switch {
	case errors.As(err, &notFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, notFound.Error())
	case errors.As(err, &validation):
		WriteValidationError(w, validation.Message)
	case errors.As(err, &invalidState):
		WriteError(w, http.StatusConflict, CodeInvalidState, invalidState.Error())
	case errors.As(err, &insufficient):
		WriteError(w, http.StatusPaymentRequired, CodeInsufficientCredits, insufficient.Error())
	case errors.As(err, &conflict):
		WriteError(w, http.StatusConflict, CodeConflict, conflict.Message)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled service error")
		WriteInternalError(w)
	}
}

// decodeJSON reads a JSON body into dst, writing the error response itself
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "Request body is empty")
			return false
		}
		WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON format")
		return false
	}
	return true
}

// pathID parses a positive integer path variable
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		WriteValidationError(w, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return id, true
}

// accountAndID parses the {accountID} and {id} path variables
func accountAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return 0, 0, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return 0, 0, false
	}
	return accountID, id, true
}

// pageParams reads page and per_page query parameters
func pageParams(r *http.Request) (page, perPage int) {
	query := r.URL.Query()
	page = 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	perPage = 20
	if pp, err := strconv.Atoi(query.Get("per_page")); err == nil && pp > 0 {
		perPage = pp
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
