package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/coder/retry"

	"github.com/hamuko/beelzebub/beelzebubsdk"
)

const (
	// maxBatchSize bounds how many queued events go into one submission.
	maxBatchSize = 32

	submitTimeout = 15 * time.Second

	retryFloor = 250 * time.Millisecond
	retryCeil  = 30 * time.Second
)

// Dispatcher delivers completed sessions to the server. Events are held in
// an in-memory queue so that a slow or unreachable server never stalls the
// monitoring loop; delivery failures are retried with backoff on the
// delivery goroutine.
//
// The queue is not persisted. If the client exits with undelivered events
// they are lost; delivery is at-least-once only within the process
// lifetime.
type Dispatcher struct {
	log     slog.Logger
	configs ConfigSource

	mu     sync.Mutex
	queue  []beelzebubsdk.Submission
	notify chan struct{}
}

func NewDispatcher(logger slog.Logger, configs ConfigSource) *Dispatcher {
	return &Dispatcher{
		log:     logger.Named("dispatch"),
		configs: configs,
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue adds a completed session for delivery. It never blocks.
func (d *Dispatcher) Enqueue(sub beelzebubsdk.Submission) {
	d.mu.Lock()
	d.queue = append(d.queue, sub)
	depth := len(d.queue)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	d.log.Debug(context.Background(), "event queued",
		slog.F("submission", sub.DisplayString()),
		slog.F("queue_depth", depth),
	)
}

// Len returns the number of events waiting for delivery.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run delivers queued events until ctx is canceled. Transient failures keep
// the batch queued and back off; authentication failures are logged and the
// batch is dropped, since retrying with the same secret cannot succeed.
func (d *Dispatcher) Run(ctx context.Context) error {
	retrier := retry.New(retryFloor, retryCeil)
	for {
		batch := d.peek()
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-d.notify:
				continue
			}
		}

		err := d.submit(ctx, batch)
		switch {
		case err == nil:
			d.log.Info(ctx, "events submitted", slog.F("count", len(batch)))
			d.drop(len(batch))
			retrier.Reset()
		case beelzebubsdk.IsUnauthenticated(err):
			// Not retryable; holding the events forever would only grow the
			// queue. Surface the failure and move on.
			d.log.Error(ctx, "submission unauthorized, dropping events; double check secret key settings",
				slog.F("count", len(batch)),
				slog.Error(err),
			)
			d.drop(len(batch))
			retrier.Reset()
		default:
			if xerrors.Is(err, context.Canceled) {
				return nil
			}
			d.log.Warn(ctx, "could not submit events, will retry",
				slog.F("count", len(batch)),
				slog.Error(err),
			)
			if !retrier.Wait(ctx) {
				return nil
			}
		}
	}
}

func (d *Dispatcher) submit(ctx context.Context, batch []beelzebubsdk.Submission) error {
	cfg := d.configs.Config()
	serverURL, err := cfg.ParsedURL()
	if err != nil {
		// The URL is validated on configuration load, so this only happens
		// if a bad URL slipped in. Treated as transient: a configuration
		// reload can fix it.
		return xerrors.Errorf("server url: %w", err)
	}
	client := beelzebubsdk.New(serverURL)
	if cfg.Secret != "" {
		client.SetSecret(cfg.Secret)
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	return client.Submit(ctx, batch)
}

func (d *Dispatcher) peek() []beelzebubsdk.Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if n > maxBatchSize {
		n = maxBatchSize
	}
	batch := make([]beelzebubsdk.Submission, n)
	copy(batch, d.queue[:n])
	return batch
}

func (d *Dispatcher) drop(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.queue) {
		n = len(d.queue)
	}
	d.queue = d.queue[n:]
}
