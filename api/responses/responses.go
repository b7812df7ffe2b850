package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	// Client errors carry their specific message; server errors only the
	// public one.
	msg := meta.PublicMessage
	if m := typed.Message(); m != "" && meta.HTTPStatus < http.StatusInternalServerError {
		msg = m
	}

	payload := ErrorEnvelope{
		Error: APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			Retryable: pkgerrors.IsRetryable(typed),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logError(ctx, logg, meta.HTTPStatus, typed, err)
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

// logError records client rejections at warn level with their code and
// details; server failures get the full error chain and Postgres fields.
func logError(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error, err error) {
	fields := map[string]any{
		"error_code":  string(typed.Code()),
		"http_status": status,
	}
	if dm, ok := typed.Details().(map[string]any); ok {
		for _, key := range []string{"step", "productId", "orderId", "vendorId"} {
			if v, ok := dm[key]; ok {
				fields[key] = v
			}
		}
	}

	if status < http.StatusInternalServerError {
		fields["error"] = err.Error()
		logg.Warn(logg.WithFields(ctx, fields), "request.rejected")
		return
	}

	dump := pkgerrors.Dump(err)
	fields["error"] = dump.TopMessage
	fields["error_chain"] = dump.Chain
	fields["pg_code"] = dump.PGCode
	fields["pg_detail"] = dump.PGDetail
	fields["pg_message"] = dump.PGMessage
	fields["pg_table"] = dump.PGTable
	fields["pg_column"] = dump.PGColumn
	fields["pg_constraint"] = dump.PGConstraint
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
