package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"questlog/internal/apperr"
	"questlog/internal/auth"
	mw "questlog/internal/http/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Anything without a
// kind is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		mw.Log(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "server error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindValidation, apperr.KindInsufficientExperience:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUpstream:
		status = http.StatusBadGateway
		mw.Log(r.Context()).Warn("upstream failure", zap.Error(err))
	default:
		mw.Log(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: e.Msg, Fields: e.Fields})
}

// writeErrorStatus reports any classified error with a fixed status, for
// endpoints whose contract folds several kinds into one code.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	e, ok := apperr.As(err)
	if !ok {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, errorBody{Error: e.Msg, Fields: e.Fields})
}

var errBadJSON = apperr.Validation("bad json", nil)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Field(name, "must be a positive integer")
	}
	return id, nil
}

func userID(r *http.Request) uint64 {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

func isKind(err error, kinds ...apperr.Kind) bool {
	k := apperr.KindOf(err)
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
