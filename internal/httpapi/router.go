package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"aria/backend/internal/assistant"
	"aria/backend/internal/config"
	"aria/backend/internal/gemini"
	"aria/backend/internal/openrouter"
	"aria/backend/internal/serpapi"
	"aria/backend/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the full stack: session store, provider clients, search
// augmenter and object storage, then mounts the route tree.
func NewRouter(ctx context.Context, cfg config.Config, db *sql.DB) (http.Handler, error) {
	store := session.NewStore(db)

	orchestrator := assistant.NewOrchestrator(assistant.ProviderConfig{
		PrimaryKey:   cfg.OpenRouterAPIKey,
		SecondaryKey: cfg.GoogleAPIKey,
		PrimaryModel: cfg.OpenRouterModel,
		DefaultModel: cfg.OpenRouterModel,
	}, openrouter.NewClient(cfg, nil), gemini.NewClient(cfg, nil))

	augmenter := assistant.NewAugmenter(serpapi.NewClient(cfg, nil))

	files, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	h := NewHandler(cfg, db, store, orchestrator, augmenter, files)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Type", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/auth", func(authR chi.Router) {
			authR.Post("/signup", h.AuthSignup)
			authR.Post("/login", h.AuthLogin)
			authR.With(h.RequireSession).Get("/me", h.AuthMe)
			authR.With(h.RequireSession).Post("/logout", h.AuthLogout)
		})

		v1.Group(func(p chi.Router) {
			p.Use(h.RequireSession)

			p.Route("/chat", func(chat chi.Router) {
				chat.Post("/create", h.CreateChat)
				chat.Get("/list", h.ListChats)
				chat.Get("/messages", h.ListChatMessages)
				chat.Delete("/delete", h.DeleteChat)
				chat.Delete("/clear", h.ClearChats)
				chat.Post("/message", h.SendMessage)
			})

			p.Route("/files", func(filesR chi.Router) {
				filesR.Post("/upload", h.UploadFile)
				filesR.Post("/export", h.ExportFile)
				filesR.Get("/list", h.ListFiles)
				filesR.Get("/{id}/download", h.DownloadFile)
			})
		})
	})

	return r, nil
}

// newObjectStore picks GCS when a bucket is configured, local disk otherwise.
func newObjectStore(ctx context.Context, cfg config.Config) (fileObjectStore, error) {
	if cfg.GCSBucket != "" {
		return newGCSObjectStore(ctx, cfg.GCSBucket)
	}
	return newLocalObjectStore(cfg.LocalUploadDir)
}
