// Package sync drives offline-first synchronization of the local record store
// with the remote store: queue replay, incremental push, full pull and merge.
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/medadhere/backend/internal/auth"
	"github.com/medadhere/backend/internal/db"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/network"
	"github.com/medadhere/backend/internal/remote"
	"github.com/medadhere/backend/internal/sync/conflict"
	"github.com/medadhere/backend/internal/sync/queue"
	"github.com/medadhere/backend/internal/sync/status"
)

// Trigger names the reason a cycle was started.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
	TriggerOnline Trigger = "online"
	TriggerAuth   Trigger = "auth"
	TriggerQueue  Trigger = "queue"
	TriggerRetry  Trigger = "retry"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store    *db.RecordStore
	Queue    *queue.OfflineQueue
	Remote   remote.Store
	Resolver *conflict.Resolver
	Status   *status.Publisher
	Session  auth.SessionProvider
	Network  *network.Monitor
}

type stopper interface {
	Stop() bool
}

// Orchestrator runs sync cycles. At most one cycle runs at a time: manual
// callers share the in-flight cycle, background triggers arriving mid-cycle are dropped.
type Orchestrator struct {
	store    *db.RecordStore
	queue    *queue.OfflineQueue
	remote   remote.Store
	resolver *conflict.Resolver
	status   *status.Publisher
	session  auth.SessionProvider
	network  *network.Monitor

	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper

	flight  singleflight.Group
	syncing atomic.Bool
	cycles  atomic.Int64
	bg      sync.WaitGroup

	mu         sync.Mutex
	cfg        Config
	running    bool
	timer      stopper
	retryTimer stopper
	retries    int
	unsubs     []func()
}

// New creates an Orchestrator. It does not start background triggers; call Start.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid sync config", err)
	}
	if deps.Store == nil || deps.Queue == nil || deps.Remote == nil || deps.Status == nil || deps.Session == nil {
		return nil, apperrors.New(apperrors.ErrSyncNotConfigured, "sync orchestrator is missing a dependency")
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewResolver()
	}
	if deps.Network == nil {
		deps.Network = network.NewMonitor(true)
	}

	return &Orchestrator{
		store:    deps.Store,
		queue:    deps.Queue,
		remote:   deps.Remote,
		resolver: deps.Resolver,
		status:   deps.Status,
		session:  deps.Session,
		network:  deps.Network,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		cfg: cfg,
	}, nil
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Start subscribes to reachability and auth transitions and starts the periodic timer.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.timer = o.afterFunc(o.cfg.AutoSyncInterval, o.onTick)
	interval := o.cfg.AutoSyncInterval
	o.mu.Unlock()

	unsubNet := o.network.Subscribe(o.onNetworkChange)
	unsubAuth := o.session.OnAuthStateChanged(o.onAuthChange)

	o.mu.Lock()
	o.unsubs = append(o.unsubs, unsubNet, unsubAuth)
	o.mu.Unlock()

	if !o.network.Online() || o.session.CurrentUser() == nil {
		o.setOffline()
	}

	logging.Info("Sync orchestrator started", map[string]interface{}{
		"autoSyncInterval": interval.String(),
	})
}

// Stop cancels timers, unsubscribes listeners and waits for background cycles.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		o.bg.Wait()
		return
	}
	o.running = false
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	o.bg.Wait()

	logging.Info("Sync orchestrator stopped", nil)
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// SetConfig replaces the configuration. A changed AutoSyncInterval restarts
// the periodic timer when it is running.
func (o *Orchestrator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid sync config", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.cfg
	o.cfg = cfg
	if o.running && cfg.AutoSyncInterval != prev.AutoSyncInterval {
		if o.timer != nil {
			o.timer.Stop()
		}
		o.timer = o.afterFunc(cfg.AutoSyncInterval, o.onTick)
		logging.Info("Auto-sync timer restarted", map[string]interface{}{
			"from": prev.AutoSyncInterval.String(),
			"to":   cfg.AutoSyncInterval.String(),
		})
	}
	return nil
}

func (o *Orchestrator) onTick() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.timer = o.afterFunc(o.cfg.AutoSyncInterval, o.onTick)
	o.mu.Unlock()

	o.trigger(TriggerTimer)
}

func (o *Orchestrator) onNetworkChange(online bool) {
	if !online {
		o.setOffline()
		return
	}
	o.trigger(TriggerOnline)
}

func (o *Orchestrator) onAuthChange(u *auth.User) {
	if u == nil {
		o.setOffline()
		return
	}
	o.trigger(TriggerAuth)
}

func (o *Orchestrator) setOffline() {
	o.status.Update(func(s *models.SyncState) {
		if s.Status != models.StatusSyncing {
			s.Status = models.StatusOffline
		}
	})
}

// trigger starts a background cycle unless one is already running.
func (o *Orchestrator) trigger(reason Trigger) {
	if o.syncing.Load() {
		logging.Debug("Sync trigger dropped, cycle in flight", map[string]interface{}{"trigger": string(reason)})
		return
	}
	if !o.network.Online() || o.session.CurrentUser() == nil {
		o.setOffline()
		return
	}

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		_ = o.run(context.Background(), reason)
	}()
}

// SyncNow runs a cycle, or joins the one in flight, and returns its outcome.
// Cancelling ctx stops the wait, not the cycle.
func (o *Orchestrator) SyncNow(ctx context.Context) error {
	return o.run(ctx, TriggerManual)
}

func (o *Orchestrator) run(ctx context.Context, reason Trigger) error {
	if !o.network.Online() {
		o.setOffline()
		return apperrors.New(apperrors.ErrSyncOffline, "network is offline")
	}
	if o.session.CurrentUser() == nil {
		o.setOffline()
		return remote.ErrNoSession
	}

	if reason != TriggerRetry {
		o.resetRetries()
	}

	ch := o.flight.DoChan("sync", func() (interface{}, error) {
		o.syncing.Store(true)
		defer o.syncing.Store(false)
		return nil, o.cycle(context.WithoutCancel(ctx), reason)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cycle is one strictly ordered pass: replay, push, pull and merge.
//
// Pending changes counted before the cycle starts are consumed by it. Changes
// reported while it runs stay pending for the next one.
func (o *Orchestrator) cycle(ctx context.Context, reason Trigger) error {
	o.cycles.Add(1)
	started := o.now()
	var consumed int
	o.status.Update(func(s *models.SyncState) {
		consumed = s.PendingChanges
		s.Status = models.StatusSyncing
		s.ErrorMessage = ""
	})
	logging.Info("Sync cycle started", map[string]interface{}{"trigger": string(reason)})

	err := o.runSteps(ctx)
	if err != nil {
		o.fail(err, reason)
		return err
	}

	now := o.now().UnixMilli()
	var left int
	o.status.Update(func(s *models.SyncState) {
		s.PendingChanges -= consumed
		if s.PendingChanges < 0 {
			s.PendingChanges = 0
		}
		left = s.PendingChanges
		s.Status = models.StatusSynced
		if left > 0 {
			s.Status = models.StatusPending
		}
		s.LastSyncTime = now
		s.ErrorMessage = ""
	})
	o.resetRetries()

	logging.Info("Sync cycle completed", map[string]interface{}{
		"trigger":  string(reason),
		"duration": o.now().Sub(started).String(),
		"pending":  left,
	})
	return nil
}

func (o *Orchestrator) runSteps(ctx context.Context) error {
	marks := make(writeMarks)
	if _, err := o.queue.DrainAndReplay(ctx, o.replayer(marks)); err != nil {
		return err
	}

	user := o.session.CurrentUser()
	if user == nil {
		return remote.ErrNoSession
	}

	for _, kind := range models.AllKinds {
		if err := o.push(ctx, kind, marks); err != nil {
			return err
		}
	}
	for _, kind := range models.AllKinds {
		if err := o.pull(ctx, kind, user.UID, marks); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) fail(err error, reason Trigger) {
	msg := apperrors.MessageOf(err)
	o.status.Update(func(s *models.SyncState) {
		s.Status = models.StatusError
		s.ErrorMessage = msg
	})
	logging.ErrorWithCode("Sync cycle failed", string(apperrors.CodeOf(err)), err, map[string]interface{}{
		"trigger": string(reason),
	})

	if errors.Is(err, remote.ErrNoSession) || apperrors.Is(err, apperrors.ErrSyncAuthFailed) {
		return
	}
	o.scheduleRetry()
}

func (o *Orchestrator) scheduleRetry() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	if o.retries >= o.cfg.MaxRetries {
		logging.Warn("Sync retries exhausted", map[string]interface{}{"maxRetries": o.cfg.MaxRetries})
		return
	}
	o.retries++
	if o.retryTimer != nil {
		o.retryTimer.Stop()
	}
	attempt := o.retries
	o.retryTimer = o.afterFunc(o.cfg.RetryDelay, func() {
		o.trigger(TriggerRetry)
	})
	logging.Info("Sync retry scheduled", map[string]interface{}{
		"attempt": attempt,
		"delay":   o.cfg.RetryDelay.String(),
	})
}

func (o *Orchestrator) resetRetries() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = 0
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
}

// QueueForSync captures a mutation for later replay and, when possible,
// starts a background cycle.
func (o *Orchestrator) QueueForSync(action models.QueuedAction) models.QueuedAction {
	queued := o.queue.Enqueue(action)
	o.status.Update(func(s *models.SyncState) {
		s.PendingChanges++
		if s.Status == models.StatusSynced || s.Status == models.StatusError {
			s.Status = models.StatusPending
		}
	})
	o.trigger(TriggerQueue)
	return queued
}

// NotifyLocalChange marks the state pending after a direct local write and
// starts a background cycle when possible.
func (o *Orchestrator) NotifyLocalChange() {
	o.status.Update(func(s *models.SyncState) {
		s.PendingChanges++
		if s.Status == models.StatusSynced || s.Status == models.StatusError {
			s.Status = models.StatusPending
		}
	})
	o.trigger(TriggerQueue)
}

// GetSyncStatus returns the current status snapshot.
func (o *Orchestrator) GetSyncStatus() models.SyncState {
	return o.status.Get()
}

// OnSyncStatusChanged registers cb for status updates.
func (o *Orchestrator) OnSyncStatusChanged(cb func(models.SyncState)) func() {
	return o.status.Subscribe(cb)
}

// GetUnresolvedConflicts lists conflicts awaiting a manual choice.
func (o *Orchestrator) GetUnresolvedConflicts() []models.UnresolvableConflict {
	return o.resolver.GetUnresolvedConflicts()
}

// OnUnresolvableConflict registers cb for newly flagged conflicts.
func (o *Orchestrator) OnUnresolvableConflict(cb func(models.UnresolvableConflict)) func() {
	return o.resolver.OnUnresolvable(cb)
}

// ResolveConflictManually applies choice to conflict id and persists the
// result locally. Choosing local bumps updatedAt so the next cycle pushes it.
func (o *Orchestrator) ResolveConflictManually(id string, choice models.Winner) (models.Record, error) {
	c, rec, err := o.resolver.ResolveManually(id, choice)
	if err != nil {
		return models.Record{}, err
	}
	kind, err := models.ParseKind(c.StorageKey)
	if err != nil {
		return models.Record{}, apperrors.Wrap(apperrors.ErrInvalid, "conflict has an unknown storage key", err)
	}

	err = o.store.Update(kind, func(records []models.Record) ([]models.Record, error) {
		for i := range records {
			if records[i].ID != c.RecordID {
				continue
			}
			if choice == models.WinnerLocal {
				rec.UpdatedAt = bump(o.now().UnixMilli(), records[i].UpdatedAt, records[i].SyncedAt, rec.SyncedAt, c.RemoteTimestamp)
			}
			records[i] = rec
			return records, nil
		}
		return nil, apperrors.New(apperrors.ErrRecordNotFound, "record "+c.RecordID+" no longer exists locally")
	})
	if err != nil {
		return models.Record{}, err
	}

	if choice == models.WinnerLocal {
		o.NotifyLocalChange()
	}
	return rec, nil
}

// bump returns a timestamp strictly after every given one, preferring now.
func bump(now int64, after ...int64) int64 {
	out := now
	for _, t := range after {
		if t >= out {
			out = t + 1
		}
	}
	return out
}

// GetRecentLogs returns the last n log entries, oldest first.
func (o *Orchestrator) GetRecentLogs(n int) []logging.LogEntry {
	return logging.Recent(n)
}

// CycleCount reports how many cycles have executed.
func (o *Orchestrator) CycleCount() int64 {
	return o.cycles.Load()
}
