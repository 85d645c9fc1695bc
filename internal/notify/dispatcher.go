package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/visadesk/internal/backoff"
	"github.com/garyellow/visadesk/internal/config"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/sentry"
	"github.com/garyellow/visadesk/internal/storage"
)

// DispatchStore is the outbox surface the dispatcher works on.
type DispatchStore interface {
	ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]*storage.Notification, error)
	MarkNotificationSent(ctx context.Context, id, archiveKey string, at time.Time) error
	MarkNotificationRetry(ctx context.Context, id, lastErr string, next time.Time) error
	MarkNotificationFailed(ctx context.Context, id, lastErr string) error
	CountNotifications(ctx context.Context, status string) (int, error)
}

// Archiver keeps a copy of delivered letters.
type Archiver interface {
	Key(applicationID, notificationID string) string
	Put(ctx context.Context, key string, body []byte) error
}

// Locker elects a single dispatcher among processes that share one outbox.
// *r2client.DistributedLock implements it.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	TTL() time.Duration
}

// DispatcherConfig configures a Dispatcher. Archive and Lock are optional.
type DispatcherConfig struct {
	Store   DispatchStore
	Sender  Sender
	Archive Archiver
	Lock    Locker
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	PollInterval time.Duration
	Workers      int
	BatchSize    int
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Dispatcher drains the outbox through a bounded worker pool.
type Dispatcher struct {
	store   DispatchStore
	sender  Sender
	archive Archiver
	lock    Locker
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	pollInterval time.Duration
	workers      int
	batchSize    int
	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration

	leading     atomic.Bool
	renewMu     sync.Mutex
	renewCancel context.CancelFunc
	renewDone   chan struct{}
}

// NewDispatcher fills zero config values with defaults.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Workers * 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = config.NotifyRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = config.NotifyRetryMax
	}
	return &Dispatcher{
		store:        cfg.Store,
		sender:       cfg.Sender,
		archive:      cfg.Archive,
		lock:         cfg.Lock,
		logger:       cfg.Logger.WithModule("dispatcher"),
		metrics:      cfg.Metrics,
		now:          time.Now,
		pollInterval: cfg.PollInterval,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		retryInitial: cfg.RetryInitial,
		retryMax:     cfg.RetryMax,
	}
}

// Run polls until ctx is done, then releases the lock if held.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.InfoContext(ctx, "Notification dispatcher started",
		"sender", d.sender.Name(),
		"workers", d.workers,
		"poll_interval", d.pollInterval,
		"leader_election", d.lock != nil)
	defer d.stepDown()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if d.ensureLeader(ctx) {
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.WithError(err).WarnContext(ctx, "Dispatch round failed")
			}
		}
		select {
		case <-ctx.Done():
			d.logger.Info("Notification dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch of due notifications and delivers them.
// It returns the number of rows claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { d.metrics.RecordJob("notify_dispatch", time.Since(start).Seconds()) }()

	batch, err := d.store.ClaimDueNotifications(ctx, d.now(), d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, n := range batch {
		g.Go(func() error {
			defer sentry.Recover(ctx, "notify-deliver")
			return d.deliver(ctx, n)
		})
	}
	err = g.Wait()

	d.updateBacklog(ctx)
	return len(batch), err
}

// deliver sends n and records the outcome. Only store errors are returned;
// delivery failures are scheduled for retry.
func (d *Dispatcher) deliver(ctx context.Context, n *storage.Notification) error {
	log := d.logger.WithFields(map[string]any{
		"notification_id": n.ID,
		"application_id":  n.ApplicationID,
		"letter_type":     n.LetterType,
	})

	sendCtx, cancel := context.WithTimeout(ctx, config.SenderRequest)
	start := time.Now()
	sendErr := d.sender.Send(sendCtx, n)
	cancel()
	d.metrics.RecordNotificationSend(d.sender.Name(), time.Since(start).Seconds())

	if sendErr == nil {
		key := d.archiveLetter(ctx, log, n)
		if err := d.store.MarkNotificationSent(ctx, n.ID, key, d.now()); err != nil {
			return err
		}
		d.metrics.RecordNotification(n.LetterType, "sent")
		log.DebugContext(ctx, "Notification sent")
		return nil
	}

	attempt := n.Attempts + 1
	if IsPermanent(sendErr) || attempt >= d.maxAttempts {
		if err := d.store.MarkNotificationFailed(ctx, n.ID, sendErr.Error()); err != nil {
			return err
		}
		d.metrics.RecordNotification(n.LetterType, "failed")
		log.WithError(sendErr).ErrorContext(ctx, "Notification delivery failed permanently", "attempts", attempt)
		sentry.CaptureException(ctx, sendErr, map[string]string{
			"notification_id": n.ID,
			"letter_type":     n.LetterType,
			"sender":          d.sender.Name(),
		})
		return nil
	}

	delay := backoff.FullJitter(attempt, d.retryInitial, d.retryMax)
	if err := d.store.MarkNotificationRetry(ctx, n.ID, sendErr.Error(), d.now().Add(delay)); err != nil {
		return err
	}
	d.metrics.RecordNotification(n.LetterType, "retry")
	log.WithError(sendErr).WarnContext(ctx, "Notification delivery failed, will retry",
		"attempt", attempt,
		"backoff", delay)
	return nil
}

// archiveLetter uploads the letter and returns its key, or "" when there is
// no archive or the upload failed. Archive failures do not fail delivery.
func (d *Dispatcher) archiveLetter(ctx context.Context, log *logger.Logger, n *storage.Notification) string {
	if d.archive == nil {
		return ""
	}
	key := d.archive.Key(n.ApplicationID, n.ID)
	actx, cancel := context.WithTimeout(ctx, config.ArchiveRequest)
	defer cancel()
	if err := d.archive.Put(actx, key, []byte("Subject: "+n.Subject+"\n\n"+n.Body)); err != nil {
		log.WithError(err).WarnContext(ctx, "Letter archive upload failed")
		return ""
	}
	return key
}

func (d *Dispatcher) updateBacklog(ctx context.Context) {
	for _, status := range []string{storage.NotificationPending, storage.NotificationFailed} {
		n, err := d.store.CountNotifications(ctx, status)
		if err != nil {
			continue
		}
		d.metrics.SetNotificationBacklog(status, n)
	}
}

// Leading reports whether this instance currently dispatches.
func (d *Dispatcher) Leading() bool {
	return d.lock == nil || d.leading.Load()
}

// ensureLeader returns true when this instance may dispatch, acquiring the
// lock first if needed.
func (d *Dispatcher) ensureLeader(ctx context.Context) bool {
	if d.lock == nil {
		return true
	}
	if d.leading.Load() {
		return true
	}

	acquired, err := d.lock.Acquire(ctx)
	if err != nil {
		d.logger.WithError(err).WarnContext(ctx, "Dispatcher lock acquire failed")
		return false
	}
	if !acquired {
		return false
	}

	d.renewMu.Lock()
	defer d.renewMu.Unlock()
	rctx, cancel := context.WithCancel(ctx)
	d.renewCancel = cancel
	d.renewDone = make(chan struct{})
	d.leading.Store(true)
	go d.renewLoop(rctx, d.renewDone)

	d.logger.InfoContext(ctx, "Became notification dispatcher leader")
	return true
}

func (d *Dispatcher) renewLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := max(d.lock.TTL()/3, 10*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := d.lock.Renew(ctx)
			switch {
			case err != nil:
				d.leading.Store(false)
				d.logger.WithError(err).WarnContext(ctx, "Dispatcher lock renew failed")
				return
			case !renewed:
				d.leading.Store(false)
				d.logger.WarnContext(ctx, "Dispatcher lock lost during renew")
				return
			}
		}
	}
}

// stepDown stops renewing and releases the lock.
func (d *Dispatcher) stepDown() {
	if d.lock == nil {
		return
	}
	d.renewMu.Lock()
	if d.renewCancel != nil {
		d.renewCancel()
		<-d.renewDone
		d.renewCancel = nil
	}
	d.renewMu.Unlock()

	if !d.leading.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), config.ArchiveRequest)
	defer cancel()
	if err := d.lock.Release(ctx); err != nil {
		d.logger.WithError(err).Warn("Dispatcher lock release failed")
	}
}
