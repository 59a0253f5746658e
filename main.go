package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalintake/auth"
	"rentalintake/config"
	"rentalintake/database"
	"rentalintake/handlers"
	"rentalintake/lifecycle"
	"rentalintake/logger"
	"rentalintake/notify"
	"rentalintake/storage"

	"github.com/jmoiron/sqlx"
)

//go:embed static
var staticFiles embed.FS

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the server with the given command line and returns the
// process exit code. Deferred cleanup always runs before it returns.
func execute(args []string) int {
	flags := flag.NewFlagSet("rentalintake", flag.ContinueOnError)
	configPath := flags.String("config", "config.json", "Path to configuration file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	cfg := config.GetConfig()

	logger.Init(logger.Options{
		Level:    cfg.Server.LogLevel,
		Encoding: cfg.Server.LogFormat,
		FilePath: cfg.Server.LogFile,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("%v", err)
		return 1
	}
	return 0
}

// application holds the wired components of a running server.
type application struct {
	handler    http.Handler
	db         *sqlx.DB
	dispatcher *notify.Dispatcher
}

// newApplication opens the database and wires every component from cfg.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	credentials := auth.NewCredentialStore(database.NewAdminStore(db), cfg.Admin.BcryptCost)
	seeded, err := credentials.SeedDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		db.Close()
		return nil, err
	}
	if seeded {
		logger.Warn("Created default admin %q; change its password after first login", cfg.Admin.Username)
	}

	templates := notify.NewTemplateStore(cfg.Templates.File)
	if err := templates.Load(); err != nil {
		logger.Warn("Using default email templates: %v", err)
	}

	uploads, err := storage.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		db.Close()
		return nil, err
	}
	var remover lifecycle.DocumentRemover
	if cfg.Uploads.CleanupOnDelete {
		remover = uploads
	}

	public, err := publicFS(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	transport, err := notify.NewTransport(ctx, cfg.Mail, logger.With("component", "mail"))
	if err != nil {
		db.Close()
		return nil, err
	}
	emailLogs := database.NewEmailLogStore(db)
	dispatcher := notify.NewDispatcher(transport, emailLogs, notify.Options{
		QueueSize:   cfg.Mail.QueueSize,
		Workers:     cfg.Mail.Workers,
		SendTimeout: time.Duration(cfg.Mail.SendTimeoutSeconds) * time.Second,
	}, logger.With("component", "dispatcher"))

	sessionManager := auth.NewManager(database.NewSessionRows(db), cfg.Session.SecretKey, auth.OptionsFromConfig(cfg.Session))
	sessionManager.StartCleanup(ctx, time.Duration(cfg.Session.CleanupInterval)*time.Minute)

	applications := database.NewApplicationStore(db)
	engine := lifecycle.New(applications, templates, dispatcher, remover, logger.With("component", "lifecycle"))

	h := handlers.New(handlers.Deps{
		Config:        cfg,
		Applications:  applications,
		LoginAttempts: database.NewLoginAttemptStore(db),
		EmailLogs:     emailLogs,
		Engine:        engine,
		Credentials:   credentials,
		Sessions:      sessionManager,
		Templates:     templates,
		Uploads:       uploads,
		Public:        public,
		Log:           logger.With("component", "http"),
	})

	return &application{handler: h.Routes(), db: db, dispatcher: dispatcher}, nil
}

// Close drains queued notifications, then closes the database.
func (a *application) Close() {
	a.dispatcher.Close()
	if err := a.db.Close(); err != nil {
		logger.Error("Failed to close database: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ln, err := net.Listen("tcp", cfg.Server.Port)
	if err != nil {
		return err
	}

	logger.Info("Starting server on %s", cfg.Server.Port)
	logger.Info("Database: %s", cfg.Database.Path)
	logger.Info("Mail transport: %s", cfg.Mail.Transport)
	logger.Info("Log level: %s", logger.GetLogLevel())

	server := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := serve(ctx, server, ln); err != nil {
		return err
	}
	logger.Info("Server stopped, draining notification queue")
	return nil
}

// serve accepts connections on ln until ctx is cancelled. It returns only
// after in-flight requests have finished or the shutdown timeout expired.
func serve(ctx context.Context, server *http.Server, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed: %v", err)
		}
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func publicFS(cfg *config.Config) (fs.FS, error) {
	if cfg.Server.UseEmbedded {
		logger.Info("Static files: embedded")
		return fs.Sub(staticFiles, "static")
	}
	logger.Info("Static files: %s", cfg.Server.StaticDir)
	return os.DirFS(cfg.Server.StaticDir), nil
}
