package notify

import (
	"context"
	"sync"
	"time"

	"rentalintake/database"
	"rentalintake/metrics"
	"rentalintake/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a Dispatcher.
type Options struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher delivers notifications on background workers. Every attempt,
// successful or not, is appended to the email log exactly once. Delivery
// errors never reach the caller.
type Dispatcher struct {
	transport Transport
	logs      *database.EmailLogStore
	timeout   time.Duration
	log       *zap.SugaredLogger

	queue  chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(transport Transport, logs *database.EmailLogStore, opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	d := &Dispatcher{
		transport: transport,
		logs:      logs,
		timeout:   opts.SendTimeout,
		log:       log,
		queue:     make(chan Message, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		metrics.NotificationQueueDepth.Dec()
		d.deliver(msg)
	}
}

// Send renders tmpl with vars and queues the result for to.
func (d *Dispatcher) Send(to, subject, tmpl string, vars map[string]string) {
	d.Enqueue(Message{To: to, Subject: subject, Body: Render(tmpl, vars)})
}

// Enqueue hands msg to the workers. It blocks while the queue is full. After
// Close the message is delivered on the calling goroutine.
func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.deliver(msg)
		return
	}
	metrics.NotificationQueueDepth.Inc()
	d.queue <- msg
	d.mu.RUnlock()
}

// Close stops accepting queued work and waits until every queued message has
// been attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(ctx, msg)
	metrics.NotificationDuration.Observe(time.Since(start).Seconds())
	metrics.NotificationsSent.WithLabelValues(metrics.Outcome(err == nil)).Inc()

	entry := models.EmailLog{
		ID:        uuid.NewString(),
		Recipient: msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Success:   err == nil,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
		d.log.Warnw("email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
	} else {
		d.log.Debugw("email delivered", "to", msg.To, "subject", msg.Subject)
	}

	logCtx, logCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer logCancel()
	if err := d.logs.Append(logCtx, entry); err != nil {
		d.log.Errorw("failed to record email log", "to", msg.To, "error", err)
	}
}
