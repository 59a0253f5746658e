package lifecycle

import (
	"context"
	"strings"

	"rentalintake/database"
	"rentalintake/metrics"
	"rentalintake/models"

	"go.uber.org/zap"
)

// SubjectReceived is the subject of the submission acknowledgement.
const SubjectReceived = "Application Received"

// Notifier queues a templated notification. It must not block on delivery.
type Notifier interface {
	Send(to, subject, tmpl string, vars map[string]string)
}

// TemplateSource provides the current email templates.
type TemplateSource interface {
	Get() models.EmailTemplates
}

// DocumentRemover deletes stored documents.
type DocumentRemover interface {
	Remove(docs models.Documents) error
}

// Engine runs submissions and status changes and triggers their notifications.
type Engine struct {
	apps      *database.ApplicationStore
	templates TemplateSource
	notifier  Notifier
	documents DocumentRemover
	validator *submissionValidator
	log       *zap.SugaredLogger
}

// New returns an Engine. documents may be nil, in which case stored files are
// kept when an application is deleted.
func New(apps *database.ApplicationStore, templates TemplateSource, notifier Notifier, documents DocumentRemover, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		apps:      apps,
		templates: templates,
		notifier:  notifier,
		documents: documents,
		validator: newSubmissionValidator(),
		log:       log,
	}
}

// Submit validates and stores a new application and queues the acknowledgement.
func (e *Engine) Submit(ctx context.Context, app models.NewApplication, sourceIP string) (string, error) {
	app = sanitize(app)
	if err := e.validator.check(app); err != nil {
		return "", err
	}

	id, err := e.apps.Create(ctx, app, sourceIP)
	if err != nil {
		return "", err
	}
	metrics.ApplicationsSubmitted.Inc()
	e.log.Infow("application submitted", "id", id, "documents", len(app.Documents), "source_ip", sourceIP)

	e.notifier.Send(app.Email, SubjectReceived, e.templates.Get().ThankYou, vars(app.FirstName, id))
	return id, nil
}

// Transition sets the status of application id to target and queues the
// matching notification. Only accepted and rejected are valid targets. Deciding
// an already decided application again is allowed and notifies again.
func (e *Engine) Transition(ctx context.Context, id, target string) (*models.Application, error) {
	status, ok := models.ParseStatus(strings.TrimSpace(target))
	if !ok || !status.IsTarget() {
		return nil, &models.AppError{Kind: models.ErrInvalidTarget, Message: "invalid status"}
	}

	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.apps.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	previous := app.Status
	app.Status = status
	metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	e.log.Infow("application status changed", "id", id, "from", previous, "to", status)

	e.notifier.Send(app.Email, Subject(status), e.templates.Get().ForStatus(status), vars(app.FirstName, app.ID))
	return app, nil
}

// Delete removes application id and, when configured, its stored documents.
// Failing to remove a file does not fail the delete.
func (e *Engine) Delete(ctx context.Context, id string) error {
	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.apps.Delete(ctx, id); err != nil {
		return err
	}
	e.log.Infow("application deleted", "id", id)

	if e.documents != nil && len(app.Documents) > 0 {
		if err := e.documents.Remove(app.Documents); err != nil {
			e.log.Warnw("failed to remove application documents", "id", id, "error", err)
		}
	}
	return nil
}

// Subject returns the notification subject for a decided status,
// e.g. "Application Accepted".
func Subject(s models.Status) string {
	name := string(s)
	if name == "" {
		return "Application"
	}
	return "Application " + strings.ToUpper(name[:1]) + name[1:]
}

func vars(firstName, id string) map[string]string {
	return map[string]string{"firstname": firstName, "id": id}
}
