// Package apierror maps core sentinels onto HTTP error envelopes.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/core/session"
	"github.com/rostra-live/rostra/pkg/server/protocol"
)

type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError translates err into a wire error and HTTP status.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &Error{
			Code:      decodeErr.Code,
			Message:   decodeErr.Message,
			Param:     decodeErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return &Error{Code: "not_found", Message: err.Error(), RequestID: requestID}, http.StatusNotFound
	case errors.Is(err, session.ErrExpired):
		return &Error{Code: "expired", Message: err.Error(), RequestID: requestID}, http.StatusGone
	case errors.Is(err, debate.ErrConflict):
		return &Error{Code: "conflict", Message: err.Error(), RequestID: requestID}, http.StatusConflict
	case errors.Is(err, debate.ErrNotReady):
		return &Error{Code: "not_ready", Message: err.Error(), RequestID: requestID}, http.StatusConflict
	}

	return &Error{Code: "internal", Message: "internal error", RequestID: requestID}, http.StatusInternalServerError
}

// WriteJSON writes the envelope for err.
func WriteJSON(w http.ResponseWriter, err error, requestID string) {
	apiErr, status := FromError(err, requestID)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: apiErr})
}
