package handler

import (
	"net/http"

	"questlog/internal/auth"
)

type MeHandler struct {
	Users *auth.Service
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": u.ID,
		"email":  u.Email,
	})
}
