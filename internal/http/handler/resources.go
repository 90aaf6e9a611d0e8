package handler

import (
	"net/http"
	"time"

	"questlog/internal/attributes"
	"questlog/internal/character"
	"questlog/internal/family"
	"questlog/internal/goals"
	"questlog/internal/tags"
	"questlog/internal/todos"
)

type FamilyHandler struct {
	Svc *family.Service
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Relationship string `json:"relationship"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Svc.Create(r.Context(), userID(r), req.Name, req.Relationship)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *FamilyHandler) LevelUp(w http.ResponseWriter, r *http.Request) {
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

type TagHandler struct {
	Svc *tags.Service
}

// Batch creates tags the user typed; they are stored as user_set.
func (h *TagHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Svc.CreateBatch(r.Context(), userID(r), req.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": out})
}

func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TagHandler) DeleteUnused(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.DeleteUnused(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

type GoalHandler struct {
	Svc *goals.Service
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.Svc.Create(r.Context(), userID(r), goals.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type CharacterHandler struct {
	Svc *character.Service
}

func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Class     string `json:"class"`
		Backstory string `json:"backstory"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Svc.Create(r.Context(), userID(r), req.Name, req.Class, req.Backstory)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type AttributeHandler struct {
	Svc *attributes.Service
}

func (h *AttributeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Value    string `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Svc.Create(r.Context(), userID(r), req.Category, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AttributeHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type TodoHandler struct {
	Svc *todos.Service
}

// List returns only actionable to-dos.
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.ListActive(r.Context(), userID(r), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	td, err := h.Svc.Create(r.Context(), userID(r), req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, td)
}

func (h *TodoHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	td, err := h.Svc.Complete(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, td)
}
