package handlers

import (
	"io/fs"
	"net/http"

	"rentalintake/auth"
	"rentalintake/config"
	"rentalintake/database"
	"rentalintake/lifecycle"
	"rentalintake/notify"
	"rentalintake/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config        *config.Config
	Applications  *database.ApplicationStore
	LoginAttempts *database.LoginAttemptStore
	EmailLogs     *database.EmailLogStore
	Engine        *lifecycle.Engine
	Credentials   *auth.CredentialStore
	Sessions      *auth.Manager
	Templates     *notify.TemplateStore
	Uploads       *storage.Uploads
	// Public holds index.html, admin/*.html and assets.
	Public fs.FS
	Log    *zap.SugaredLogger
}

// Handler serves the public form and the admin API.
type Handler struct {
	cfg       *config.Config
	apps      *database.ApplicationStore
	attempts  *database.LoginAttemptStore
	emailLogs *database.EmailLogStore
	engine    *lifecycle.Engine
	creds     *auth.CredentialStore
	sessions  *auth.Manager
	templates *notify.TemplateStore
	uploads   *storage.Uploads
	public    fs.FS
	log       *zap.SugaredLogger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handler{
		cfg:       cfg,
		apps:      d.Applications,
		attempts:  d.LoginAttempts,
		emailLogs: d.EmailLogs,
		engine:    d.Engine,
		creds:     d.Credentials,
		sessions:  d.Sessions,
		templates: d.Templates,
		uploads:   d.Uploads,
		public:    d.Public,
		log:       log,
	}
}

// Routes returns the complete router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/", h.IndexHandler)
	r.Post("/", h.SubmitHandler)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.public))))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(noStore)
		r.Get("/login.html", h.pageHandler("admin/login.html", false))
		r.Get("/dashboard.html", h.pageHandler("admin/dashboard.html", true))
		r.Post("/login", h.LoginHandler)
		r.Get("/logout", h.LogoutHandler)
		r.Get("/api/status", h.StatusHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.Guard)
			r.Get("/api/applications", h.ListApplicationsHandler)
			r.Post("/api/application/{id}/status", h.UpdateStatusHandler)
			r.Delete("/api/application/{id}", h.DeleteApplicationHandler)
			r.Get("/api/count", h.CountHandler)
			r.Get("/api/templates", h.GetTemplatesHandler)
			r.Post("/api/templates", h.UpdateTemplatesHandler)
			r.Post("/api/change-password", h.ChangePasswordHandler)
			r.Get("/api/failed-logins", h.FailedLoginsHandler)
			r.Delete("/api/failed-logins", h.ClearFailedLoginsHandler)
			r.Get("/api/email-logs", h.EmailLogsHandler)
		})

		// Unknown admin API paths are denied the same way as protected ones.
		r.With(h.Guard).NotFound(func(w http.ResponseWriter, r *http.Request) {
			respondWithError(w, http.StatusNotFound, "not_found", "no such endpoint")
		})
	})

	r.With(h.Guard).Get("/uploads/*", h.UploadHandler)

	return r
}
