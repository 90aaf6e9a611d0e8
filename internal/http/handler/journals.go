package handler

import (
	"net/http"

	"questlog/internal/apperr"
	"questlog/internal/journal"

	"github.com/go-chi/chi/v5"
)

type JournalHandler struct {
	Svc *journal.Service
}

type createJournalReq struct {
	Date           string `json:"date"`
	InitialMessage string `json:"initialMessage"`
	DayRating      *int   `json:"dayRating"`
}

func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createJournalReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	j, err := h.Svc.Create(r.Context(), userID(r), journal.CreateInput{
		Date:           req.Date,
		InitialMessage: req.InitialMessage,
		DayRating:      req.DayRating,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.Svc.Get(r.Context(), userID(r), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type updateJournalReq struct {
	InitialMessage *string `json:"initialMessage"`
	DayRating      *int    `json:"dayRating"`
}

func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateJournalReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	j, err := h.Svc.Update(r.Context(), userID(r), chi.URLParam(r, "date"), journal.UpdateInput{
		InitialMessage: req.InitialMessage,
		DayRating:      req.DayRating,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), userID(r), chi.URLParam(r, "date")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JournalHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DayRating *int `json:"dayRating"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DayRating == nil {
		writeError(w, r, apperr.Field("dayRating", "required"))
		return
	}
	j, err := h.Svc.SetDayRating(r.Context(), userID(r), chi.URLParam(r, "date"), *req.DayRating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JournalHandler) Reflect(w http.ResponseWriter, r *http.Request) {
	j, err := h.Svc.StartReflection(r.Context(), userID(r), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JournalHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	j, err := h.Svc.Chat(r.Context(), userID(r), chi.URLParam(r, "date"), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// Finish answers 400 for a missing, draft or already completed journal.
func (h *JournalHandler) Finish(w http.ResponseWriter, r *http.Request) {
	j, err := h.Svc.Finish(r.Context(), userID(r), chi.URLParam(r, "date"))
	if err != nil {
		if isKind(err, apperr.KindNotFound, apperr.KindConflict, apperr.KindValidation) {
			writeErrorStatus(w, r, http.StatusBadRequest, err)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
