package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/store"
)

// maxRequestBodySize bounds every JSON request body this package decodes;
// the document upload handler applies its own, larger limit.
const maxRequestBodySize = 1 << 20 // 1 MB

const rfc3339 = "2006-01-02T15:04:05Z07:00"

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}

// errorDetail is the body of every 4xx/5xx response: {"detail":{"code":...}}.
type errorDetail struct {
	Detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorDetail
	body.Detail.Code = code
	body.Detail.Message = message
	writeJSON(w, status, body)
}

// writeErrFromErr classifies err against apperr's Kind table and the bare
// store sentinels, and writes the matching envelope. An error that matches
// neither is an unclassified internal error and becomes a 500.
func writeErrFromErr(w http.ResponseWriter, err error) {
	if kind, ok := apperr.KindOf(err); ok {
		status, code := statusForKind(kind)
		if code == "" {
			code = apperr.CodeOf(err)
		}
		writeError(w, status, code, err.Error())
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// statusForKind is the single table mapping a Kind to its default HTTP
// status. code is returned empty when the error's own Code should win
// (the codified Phase-4 gate codes, for instance); statusForKind never
// invents a code for those.
func statusForKind(kind apperr.Kind) (status int, code string) {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity, ""
	case apperr.KindNotFound:
		return http.StatusNotFound, ""
	case apperr.KindConflict:
		return http.StatusConflict, ""
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, ""
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, ""
	case apperr.KindProviderError, apperr.KindJSONGuard, apperr.KindEmptyCriticalResult:
		return http.StatusBadGateway, ""
	default:
		return http.StatusInternalServerError, ""
	}
}
