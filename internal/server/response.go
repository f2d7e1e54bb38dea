package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/amaos/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.Error) {
	respondJSON(w, status, reqID, nil, apiErr)
}

// respondKernelError maps a kernel error to its HTTP status.
func respondKernelError(w http.ResponseWriter, reqID string, err error) {
	var apiErr *model.Error
	if !errors.As(err, &apiErr) {
		apiErr = model.WrapError(model.CodeInternal, "internal error", err)
	}
	respondError(w, reqID, statusFor(apiErr.Code), &model.Error{Code: apiErr.Code, Message: apiErr.Error()})
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeInvalidName, model.CodeValidation:
		return http.StatusBadRequest
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeQueueFull, model.CodeInsufficientResources:
		return http.StatusConflict
	case model.CodeLaunchFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *model.Error) {
	resp := model.Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
