package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, successEnvelope{Data: data})
}

// writeError maps err onto its code's HTTP status. Internal faults only ever show the
// public message; their detail goes to the log.
func writeError(ctx context.Context, log *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Internal(err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	payload := errorEnvelope{Error: apiError{Code: string(typed.Code()), Message: meta.PublicMessage}}
	if typed.Code() != apperr.CodeInternal && typed.Message() != "" {
		payload.Error.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		payload.Error.Details = typed.Details()
	}

	if log != nil {
		ctx = log.WithFields(ctx, map[string]any{
			"error_code": typed.Code(),
			"status":     meta.HTTPStatus,
		})
		if typed.Code() == apperr.CodeInternal {
			dump := apperr.Dump(err)
			ctx = log.WithFields(ctx, map[string]any{
				"error_chain": dump.Chain,
				"pg_code":     dump.PGCode,
				"pg_detail":   dump.PGDetail,
			})
			log.Error(ctx, "request.error", err)
		} else {
			log.Warn(ctx, "request.rejected", err)
		}
	}
	writeJSON(w, meta.HTTPStatus, payload)
}
