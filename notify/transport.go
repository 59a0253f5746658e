package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"rentalintake/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport delivers a message. Implementations make exactly one attempt.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// NewTransport builds the transport selected by cfg.Transport.
func NewTransport(ctx context.Context, cfg config.MailConfig, log *zap.SugaredLogger) (Transport, error) {
	switch strings.ToLower(cfg.Transport) {
	case "smtp":
		return NewSMTPTransport(cfg), nil
	case "ses":
		return NewSESTransport(ctx, cfg.SESRegion, cfg.From)
	case "command":
		return NewCommandTransport(cfg.Command), nil
	case "", "log":
		return NewLogTransport(log), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// SMTPTransport sends through an SMTP relay.
type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPTransport(cfg config.MailConfig) *SMTPTransport {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	d.SSL = cfg.SMTPSSL
	if cfg.SMTPUsername == "" {
		d.Auth = nil
	}
	return &SMTPTransport{dialer: d, from: cfg.From}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() { done <- t.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SESAPI is the part of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESTransport sends through Amazon SES.
type SESTransport struct {
	client SESAPI
	from   string
}

func NewSESTransport(ctx context.Context, region, from string) (*SESTransport, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESTransport{client: ses.NewFromConfig(cfg), from: from}, nil
}

// NewSESTransportWithClient is used with a preconfigured or fake client.
func NewSESTransportWithClient(client SESAPI, from string) *SESTransport {
	return &SESTransport{client: client, from: from}
}

func (t *SESTransport) Send(ctx context.Context, msg Message) error {
	_, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body)},
			},
		},
		Source: aws.String(t.from),
	})
	return err
}

// CommandTransport pipes the body into a local mail(1) compatible program,
// invoked as: <path> -s <subject> <recipient>.
type CommandTransport struct {
	path string
}

func NewCommandTransport(path string) *CommandTransport {
	if path == "" {
		path = "mail"
	}
	return &CommandTransport{path: path}
}

func (t *CommandTransport) Send(ctx context.Context, msg Message) error {
	if strings.HasPrefix(msg.To, "-") {
		return fmt.Errorf("refusing recipient %q", msg.To)
	}

	cmd := exec.CommandContext(ctx, t.path, "-s", msg.Subject, "--", msg.To)
	cmd.Stdin = strings.NewReader(msg.Body)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w: %s", t.path, err, s)
		}
		return fmt.Errorf("%s: %w", t.path, err)
	}
	return nil
}

// LogTransport only logs messages. It is the development default.
type LogTransport struct {
	log *zap.SugaredLogger
}

func NewLogTransport(log *zap.SugaredLogger) *LogTransport {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogTransport{log: log}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.log.Infow("email", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.Body))
	return nil
}

// MemoryTransport records messages instead of sending them.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// FailWith makes subsequent sends fail with err. A nil err restores success.
func (t *MemoryTransport) FailWith(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *MemoryTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

// Messages returns the delivered messages in order.
func (t *MemoryTransport) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}
