package handler

import (
	"net/http"

	"questlog/internal/apperr"
	"questlog/internal/ledger"
	"questlog/internal/leveling"
	"questlog/internal/stats"
)

type StatHandler struct {
	Svc    *stats.Service
	Ledger *ledger.Service
}

type statView struct {
	*stats.SkillStat
	Progress leveling.Progress `json:"progress"`
}

func (h *StatHandler) view(st *stats.SkillStat) statView {
	return statView{SkillStat: st, Progress: h.Svc.Progress(st)}
}

func (h *StatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.Svc.Create(r.Context(), userID(r), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(st))
}

func (h *StatHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]statView, len(list))
	for i := range list {
		out[i] = h.view(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type grantXPReq struct {
	StatID     *uint64 `json:"statId"`
	XPAmount   *int64  `json:"xpAmount"`
	SourceType string  `json:"sourceType"`
	Reason     string  `json:"reason"`
}

func (h *StatHandler) GrantXP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req grantXPReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.StatID != nil && *req.StatID != id {
		writeError(w, r, apperr.Field("statId", "does not match path"))
		return
	}
	if req.XPAmount == nil {
		writeError(w, r, apperr.Field("xpAmount", "required"))
		return
	}

	res, err := h.Svc.GrantXP(r.Context(), userID(r), id, *req.XPAmount, ledger.SourceType(req.SourceType), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *StatHandler) LevelUp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Svc.LevelUp(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History lists the stat's ledger grants, newest first.
func (h *StatHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Svc.Get(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	grants, err := h.Ledger.History(r.Context(), userID(r), ledger.TargetSkillStat, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *StatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
