// Package syncer implements the sync coordinator: per-purpose cursors, the
// pull/push/backfill cycle, the pending-mutation outbox, and the fallback
// poll loop that guarantees eventual convergence.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/remote"
	"github.com/starford/raido/internal/store"
)

// Cursor purposes. The live view and bounded history queries must not share
// a cursor namespace, or the backfill gap cannot be detected.
const (
	PurposeLive    = "live"
	PurposeHistory = "history"
)

// DefaultBackfillMargin is the safety margin added to a bounded query's
// window end when checking whether the cursor has advanced past it.
const DefaultBackfillMargin = 5 * time.Minute

// DefaultPollInterval is the fallback poll period: the authoritative
// convergence backstop when every cross-context signal is lost.
const DefaultPollInterval = 30 * time.Second

// CursorStore persists the opaque ms-epoch watermark per (account, purpose).
type CursorStore interface {
	Cursor(account, purpose string) (int64, error)
	SetCursor(account, purpose string, since int64) error
}

// Config wires a Coordinator.
type Config struct {
	Account string
	Device  string
	Client  remote.Client
	Store   *store.Store
	Cursors CursorStore
	// Persist, when non-nil, is invoked after every applied pull so the
	// merged state survives reload.
	Persist func() error
	Logger  *slog.Logger
	// BackfillMargin defaults to DefaultBackfillMargin when zero.
	BackfillMargin time.Duration
}

// Coordinator drives pull, push, and backfill against the remote endpoint.
// At most one pull per purpose is in flight at a time.
type Coordinator struct {
	account string
	device  string
	client  remote.Client
	store   *store.Store
	cursors CursorStore
	persist func() error
	logger  *slog.Logger
	margin  int64

	mu           sync.Mutex
	inflight     map[string]bool
	pushing      bool
	outbox       []models.DiffBatch
	lastPushErr  error
	epochCovered map[string]bool
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	margin := cfg.BackfillMargin
	if margin <= 0 {
		margin = DefaultBackfillMargin
	}
	return &Coordinator{
		account:      cfg.Account,
		device:       cfg.Device,
		client:       cfg.Client,
		store:        cfg.Store,
		cursors:      cfg.Cursors,
		persist:      cfg.Persist,
		logger:       logger,
		margin:       margin.Milliseconds(),
		inflight:     make(map[string]bool),
		epochCovered: make(map[string]bool),
	}
}

// Pull fetches everything changed strictly after the purpose's cursor,
// applies it, and advances the cursor to the server-reported time. The
// cursor moves only after a completed and applied response; a failed or
// aborted pull leaves all state exactly as before and is safely retried
// against the same window. A pull requested while one for the same purpose
// is outstanding returns apperr.ErrSyncInFlight and does nothing.
func (c *Coordinator) Pull(ctx context.Context, purpose string) error {
	c.mu.Lock()
	if c.inflight[purpose] {
		c.mu.Unlock()
		return apperr.ErrSyncInFlight
	}
	c.inflight[purpose] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, purpose)
		c.mu.Unlock()
	}()

	since, err := c.cursors.Cursor(c.account, purpose)
	if err != nil {
		return err
	}

	resp, err := c.client.Pull(ctx, remote.PullRequest{
		Account:     c.account,
		Since:       since,
		Collections: models.Collections,
	})
	if err != nil {
		c.logger.Warn("sync: pull failed",
			slog.String("purpose", purpose),
			slog.Int64("since", since),
			slog.String("error", err.Error()))
		return err
	}

	c.store.ApplyBatch(resp.Diffs)
	if c.persist != nil {
		if err := c.persist(); err != nil {
			c.logger.Warn("sync: persist after pull failed", slog.String("error", err.Error()))
		}
	}
	if err := c.cursors.SetCursor(c.account, purpose, resp.ServerTime); err != nil {
		return err
	}
	if since == 0 {
		c.mu.Lock()
		c.epochCovered[purpose] = true
		c.mu.Unlock()
	}

	c.logger.Debug("sync: pulled",
		slog.String("purpose", purpose),
		slog.Int64("since", since),
		slog.Int64("server_time", resp.ServerTime))
	return nil
}

// Push queues a locally originated mutation and attempts to flush the
// outbox. Failure never blocks the optimistic local update: the batch stays
// queued for the next flush and the error is recorded for surfacing.
func (c *Coordinator) Push(ctx context.Context, batch models.DiffBatch) error {
	if batch.Empty() {
		return nil
	}
	c.mu.Lock()
	c.outbox = append(c.outbox, batch)
	c.mu.Unlock()
	return c.Flush(ctx)
}

// Flush sends queued mutations in order, stopping at the first failure.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.pushing {
		c.mu.Unlock()
		return nil
	}
	c.pushing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pushing = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.lastPushErr = nil
			c.mu.Unlock()
			return nil
		}
		batch := c.outbox[0]
		c.mu.Unlock()

		err := c.client.Push(ctx, remote.PushRequest{
			Account: c.account,
			Device:  c.device,
			Diffs:   batch,
		})
		if err != nil {
			c.mu.Lock()
			c.lastPushErr = err
			c.mu.Unlock()
			c.logger.Warn("sync: push failed", slog.String("error", err.Error()))
			return err
		}

		c.mu.Lock()
		c.outbox = c.outbox[1:]
		c.mu.Unlock()
	}
}

// LastPushError returns the most recent push failure, nil once a flush has
// fully drained the outbox.
func (c *Coordinator) LastPushError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPushErr
}

// PendingPushes returns the number of queued, unacknowledged mutations.
func (c *Coordinator) PendingPushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

// Reset forces the purpose's cursor back to the epoch and repulls.
func (c *Coordinator) Reset(ctx context.Context, purpose string) error {
	if err := c.cursors.SetCursor(c.account, purpose, 0); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.epochCovered, purpose)
	c.mu.Unlock()
	err := c.Pull(ctx, purpose)
	if errors.Is(err, apperr.ErrSyncInFlight) {
		return nil
	}
	return err
}

// EnsureWindow self-heals the structural cursor gap for a bounded query:
// when windowEnd plus the safety margin is still before the cursor, an
// otherwise globally current cursor could be hiding historical data, so the
// cursor is forced to the epoch and one full repull runs before normal
// advancement resumes. Once a full repull has covered the epoch in this
// process, the gap cannot hide anything and the check short-circuits.
// It reports whether a backfill was forced.
func (c *Coordinator) EnsureWindow(ctx context.Context, purpose string, windowEnd int64) (bool, error) {
	c.mu.Lock()
	covered := c.epochCovered[purpose]
	c.mu.Unlock()
	if covered {
		return false, nil
	}

	since, err := c.cursors.Cursor(c.account, purpose)
	if err != nil {
		return false, err
	}
	if windowEnd+c.margin >= since {
		return false, nil
	}

	c.logger.Info("sync: backfill forced",
		slog.String("purpose", purpose),
		slog.Int64("window_end", windowEnd),
		slog.Int64("since", since))
	if err := c.cursors.SetCursor(c.account, purpose, 0); err != nil {
		return false, err
	}
	return true, c.Pull(ctx, purpose)
}

// HandleSignal maps a cross-context signal to the corresponding operation.
// Signals are advisory: any failure is logged and absorbed, because the
// fallback poll will converge regardless.
func (c *Coordinator) HandleSignal(ctx context.Context, sig notify.Signal) {
	purpose := sig.Purpose
	if purpose == "" {
		purpose = PurposeLive
	}

	var err error
	switch sig.Type {
	case notify.TypePull:
		err = c.Pull(ctx, purpose)
	case notify.TypePush:
		err = c.Flush(ctx)
	case notify.TypeReset:
		err = c.Reset(ctx, purpose)
	}
	if err != nil && !errors.Is(err, apperr.ErrSyncInFlight) {
		c.logger.Warn("sync: signal handling failed",
			slog.String("type", string(sig.Type)),
			slog.String("error", err.Error()))
	}
}

// RunPoll drives the fixed-interval fallback poll until ctx is cancelled:
// flush pending pushes, then pull the live purpose.
func (c *Coordinator) RunPoll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				continue
			}
			if err := c.Pull(ctx, PurposeLive); err != nil && !errors.Is(err, apperr.ErrSyncInFlight) {
				c.logger.Warn("sync: poll pull failed", slog.String("error", err.Error()))
			}
		}
	}
}
