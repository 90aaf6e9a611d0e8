package http

import (
	"net/http"

	"questlog/internal/attributes"
	"questlog/internal/auth"
	"questlog/internal/character"
	"questlog/internal/config"
	"questlog/internal/family"
	"questlog/internal/goals"
	"questlog/internal/http/handler"
	mw "questlog/internal/http/middleware"
	"questlog/internal/journal"
	"questlog/internal/ledger"
	"questlog/internal/logging"
	"questlog/internal/stats"
	"questlog/internal/tags"
	"questlog/internal/todos"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the router wires into handlers. Journals is
// built by the caller because it carries the text-analysis clients.
type Deps struct {
	DB       *gorm.DB
	JWT      *auth.JWT
	Journals *journal.Service
	Tags     *tags.Service
	Log      *zap.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	log := logging.OrNop(d.Log)
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	users := &auth.Service{DB: d.DB}
	ah := &handler.AuthHandler{Users: users, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	tagSvc := d.Tags
	if tagSvc == nil {
		tagSvc = &tags.Service{DB: d.DB, Log: log}
	}
	statH := &handler.StatHandler{Svc: &stats.Service{DB: d.DB}, Ledger: &ledger.Service{DB: d.DB}}
	journalH := &handler.JournalHandler{Svc: d.Journals}
	familyH := &handler.FamilyHandler{Svc: &family.Service{DB: d.DB}}
	tagH := &handler.TagHandler{Svc: tagSvc}
	goalH := &handler.GoalHandler{Svc: &goals.Service{DB: d.DB}}
	charH := &handler.CharacterHandler{Svc: &character.Service{DB: d.DB}}
	attrH := &handler.AttributeHandler{Svc: &attributes.Service{DB: d.DB}}
	todoH := &handler.TodoHandler{Svc: &todos.Service{DB: d.DB}}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Get("/me", (&handler.MeHandler{Users: users}).Me)

		r.Route("/journals", func(r chi.Router) {
			r.Post("/", journalH.Create)
			r.Get("/", journalH.List)
			r.Get("/{date}", journalH.Get)
			r.Patch("/{date}", journalH.Update)
			r.Delete("/{date}", journalH.Delete)
			r.Put("/{date}/rating", journalH.SetRating)
			r.Post("/{date}/reflect", journalH.Reflect)
			r.Post("/{date}/chat", journalH.Chat)
			r.Post("/{date}/finish", journalH.Finish)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Post("/", statH.Create)
			r.Get("/", statH.List)
			r.Delete("/{id}", statH.Delete)
			r.Post("/{id}/xp", statH.GrantXP)
			r.Get("/{id}/xp", statH.History)
			r.Post("/{id}/level-up", statH.LevelUp)
		})

		r.Route("/family", func(r chi.Router) {
			r.Post("/", familyH.Create)
			r.Get("/", familyH.List)
			r.Post("/{id}/level-up", familyH.LevelUp)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Post("/batch", tagH.Batch)
			r.Get("/", tagH.List)
			r.Delete("/unused", tagH.DeleteUnused)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Post("/", goalH.Create)
			r.Get("/", goalH.List)
		})

		r.Post("/character", charH.Create)
		r.Get("/character", charH.Get)

		r.Route("/attributes", func(r chi.Router) {
			r.Post("/", attrH.Create)
			r.Get("/", attrH.List)
		})

		r.Route("/todos", func(r chi.Router) {
			r.Get("/", todoH.List)
			r.Post("/", todoH.Create)
			r.Post("/{id}/complete", todoH.Complete)
		})
	})

	return r
}
