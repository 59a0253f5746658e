package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"rentalintake/config"
	"rentalintake/database"
	"rentalintake/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRenderReplacesAllOccurrences(t *testing.T) {
	got := Render("Hi {{firstname}}, id {{id}} again {{id}}", map[string]string{"firstname": "Ann", "id": "42"})
	assert.Equal(t, "Hi Ann, id 42 again 42", got)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	got := Render("Dear {{firstname}} {{lastname}}", map[string]string{"firstname": "Ann"})
	assert.Equal(t, "Dear Ann {{lastname}}", got)
}

func TestRenderDoesNotExpandValues(t *testing.T) {
	got := Render("{{firstname}}/{{id}}", map[string]string{"firstname": "{{id}}", "id": "7"})
	assert.Equal(t, "{{id}}/7", got)
}

func TestRenderNoVars(t *testing.T) {
	assert.Equal(t, "plain {{id}}", Render("plain {{id}}", nil))
}

func TestTemplateStoreMissingFileUsesDefaults(t *testing.T) {
	store := NewTemplateStore(filepath.Join(t.TempDir(), "emailTemplates.json"))
	require.NoError(t, store.Load())
	assert.Equal(t, models.DefaultEmailTemplates(), store.Get())
}

func TestTemplateStoreCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emailTemplates.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := NewTemplateStore(path)
	assert.Error(t, store.Load())
	assert.Equal(t, models.DefaultEmailTemplates(), store.Get())
}

func TestTemplateStorePartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emailTemplates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accepted": "Welcome {{firstname}}"}`), 0644))

	store := NewTemplateStore(path)
	require.NoError(t, store.Load())
	got := store.Get()
	assert.Equal(t, "Welcome {{firstname}}", got.Accepted)
	assert.Equal(t, models.DefaultEmailTemplates().ThankYou, got.ThankYou)
	assert.Equal(t, models.DefaultEmailTemplates().Rejected, got.Rejected)
}

func TestTemplateStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emailTemplates.json")
	store := NewTemplateStore(path)
	require.NoError(t, store.Load())

	updated := models.EmailTemplates{ThankYou: "T {{id}}", Accepted: "A {{id}}", Rejected: "R {{id}}"}
	require.NoError(t, store.Update(updated))
	assert.Equal(t, updated, store.Get())

	reloaded := NewTemplateStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, updated, reloaded.Get())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".templates-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestTemplateStoreUpdateRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emailTemplates.json")
	store := NewTemplateStore(path)

	err := store.Update(models.EmailTemplates{ThankYou: "x", Accepted: ""})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, models.DefaultEmailTemplates(), store.Get())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing written on validation failure")
}

func TestTemplateStoreConcurrentAccess(t *testing.T) {
	store := NewTemplateStore(filepath.Join(t.TempDir(), "emailTemplates.json"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				v := fmt.Sprintf("v%d-%d", i, j)
				assert.NoError(t, store.Update(models.EmailTemplates{ThankYou: v, Accepted: v, Rejected: v}))
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got := store.Get()
				assert.Equal(t, got.ThankYou, got.Accepted, "reads never observe a torn update")
			}
		}()
	}
	wg.Wait()
}

func TestParseTemplates(t *testing.T) {
	got, err := ParseTemplates([]byte(`{"thankYou":"a","accepted":"b","rejected":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, models.EmailTemplates{ThankYou: "a", Accepted: "b", Rejected: "c"}, got)

	_, err = ParseTemplates([]byte(`{"thankYou": 5}`))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = ParseTemplates([]byte(`{"thankYou":"a","extra":"b"}`))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = ParseTemplates([]byte(`["a"]`))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = ParseTemplates([]byte(`nope`))
	assert.ErrorIs(t, err, models.ErrValidation)
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	return &ses.SendEmailOutput{}, f.err
}

func TestSESTransport(t *testing.T) {
	client := &fakeSES{}
	tr := NewSESTransportWithClient(client, "noreply@example.com")

	require.NoError(t, tr.Send(context.Background(), Message{To: "ann@example.com", Subject: "Application Received", Body: "hello"}))
	require.NotNil(t, client.input)
	assert.Equal(t, []string{"ann@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "noreply@example.com", *client.input.Source)
	assert.Equal(t, "Application Received", *client.input.Message.Subject.Data)
	assert.Equal(t, "hello", *client.input.Message.Body.Text.Data)

	client.err = errors.New("throttled")
	assert.EqualError(t, tr.Send(context.Background(), Message{To: "x@y.z"}), "throttled")
}

func TestCommandTransport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := filepath.Join(dir, "mail")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > "+out+"\ncat >> "+out+"\n"), 0755))

	tr := NewCommandTransport(script)
	err := tr.Send(context.Background(), Message{To: "ann@example.com", Subject: "Application Received", Body: "Dear Ann"})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "-s Application Received -- ann@example.com\nDear Ann", string(data))

	assert.Error(t, tr.Send(context.Background(), Message{To: "-oProxyCommand"}))
}

func TestCommandTransportFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	tr := NewCommandTransport(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, tr.Send(context.Background(), Message{To: "a@b.co", Subject: "s", Body: "b"}))
}

func TestNewTransport(t *testing.T) {
	ctx := context.Background()

	tr, err := NewTransport(ctx, config.MailConfig{Transport: "log"}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.IsType(t, &LogTransport{}, tr)

	tr, err = NewTransport(ctx, config.MailConfig{Transport: "smtp", SMTPHost: "localhost", SMTPPort: 25}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPTransport{}, tr)

	tr, err = NewTransport(ctx, config.MailConfig{Transport: "command"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CommandTransport{}, tr)

	_, err = NewTransport(ctx, config.MailConfig{Transport: "pigeon"}, nil)
	assert.Error(t, err)
}

func setupLogs(t *testing.T) *database.EmailLogStore {
	t.Helper()
	db, err := database.Open(database.Driver, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewEmailLogStore(db)
}

func TestDispatcherLogsEveryAttempt(t *testing.T) {
	logs := setupLogs(t)
	tr := NewMemoryTransport()
	d := NewDispatcher(tr, logs, Options{QueueSize: 4, Workers: 2, SendTimeout: time.Second}, zaptest.NewLogger(t).Sugar())

	d.Send("ann@example.com", "Application Received", "Dear {{firstname}}, ref {{id}}", map[string]string{"firstname": "Ann", "id": "42"})
	d.Send("bob@example.com", "Application Accepted", "Hi {{firstname}}", map[string]string{"firstname": "Bob"})
	d.Close()

	sent := tr.Messages()
	require.Len(t, sent, 2)

	page, err := logs.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	bodies := map[string]string{}
	for _, e := range page.Items {
		assert.True(t, e.Success)
		assert.Empty(t, e.Error)
		bodies[e.Recipient] = e.Body
	}
	assert.Equal(t, "Dear Ann, ref 42", bodies["ann@example.com"])
	assert.Equal(t, "Hi Bob", bodies["bob@example.com"])
}

func TestDispatcherRecordsFailures(t *testing.T) {
	logs := setupLogs(t)
	tr := NewMemoryTransport()
	tr.FailWith(errors.New("relay unavailable"))
	d := NewDispatcher(tr, logs, Options{}, nil)

	d.Enqueue(Message{To: "ann@example.com", Subject: "Application Rejected", Body: "sorry"})
	d.Close()

	page, err := logs.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].Success)
	assert.Equal(t, "relay unavailable", page.Items[0].Error)
	assert.Equal(t, "sorry", page.Items[0].Body)
}

type slowTransport struct {
	delay time.Duration
}

func (s slowTransport) Send(ctx context.Context, _ Message) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDispatcherSendTimeout(t *testing.T) {
	logs := setupLogs(t)
	d := NewDispatcher(slowTransport{delay: time.Second}, logs, Options{SendTimeout: 20 * time.Millisecond}, nil)

	d.Enqueue(Message{To: "slow@example.com", Subject: "s", Body: "b"})
	d.Close()

	page, err := logs.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].Success)
	assert.Contains(t, page.Items[0].Error, "deadline exceeded")
}

func TestDispatcherEnqueueAfterClose(t *testing.T) {
	logs := setupLogs(t)
	tr := NewMemoryTransport()
	d := NewDispatcher(tr, logs, Options{}, nil)
	d.Close()
	d.Close()

	d.Enqueue(Message{To: "late@example.com", Subject: "s", Body: "b"})

	assert.Len(t, tr.Messages(), 1)
	n, err := logs.CountFor(context.Background(), "late@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatcherDrainsQueueOnClose(t *testing.T) {
	logs := setupLogs(t)
	tr := NewMemoryTransport()
	d := NewDispatcher(tr, logs, Options{QueueSize: 2, Workers: 1}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Enqueue(Message{To: fmt.Sprintf("user%d@example.com", i), Subject: "s", Body: "b"})
		}(i)
	}
	wg.Wait()
	d.Close()

	assert.Len(t, tr.Messages(), 20)
	page, err := logs.List(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 20, page.Total)
}
