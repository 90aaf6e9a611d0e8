package handler

import (
	"errors"
	"net/http"

	"questlog/internal/auth"
)

type AuthHandler struct {
	Users *auth.Service
	JWT   *auth.JWT
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResp{Token: token, User: u})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResp{Token: token, User: u})
}
