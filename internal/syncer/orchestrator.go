// Package syncer reconciles the local store with the remote record API.
// One orchestrator owns the whole sync lifecycle: reachability-driven,
// periodic, and manual triggers all funnel into a single run at a time.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/merehq/mere-core/internal/models"
	"github.com/merehq/mere-core/internal/netmon"
	"github.com/merehq/mere-core/internal/remote"
	"github.com/merehq/mere-core/internal/repository"
)

// ErrConflictResolution is reserved for a merge strategy richer than
// last-writer-wins. Nothing returns it while updated_at decides conflicts.
var ErrConflictResolution = errors.New("conflict resolution failed")

type State int

const (
	StateIdle State = iota
	StateSyncing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Summary is the outcome of one sync run. Failed counts records left
// unsynced for the next trigger; a non-zero value does not fail the run.
type Summary struct {
	Total  int
	Synced int
	Failed int
}

// Boundary is the slice of the remote API the orchestrator uses.
// *remote.Client satisfies it.
type Boundary interface {
	PushMemo(ctx context.Context, memo *models.Memo) error
	PushTodo(ctx context.Context, todo *models.Todo) error
	PushEvent(ctx context.Context, event *models.Event) error
	Pull(ctx context.Context, ownerID string, since time.Time) (*remote.ChangeSet, error)
}

// Reachability is the slice of the network monitor the orchestrator uses.
// *netmon.Monitor satisfies it.
type Reachability interface {
	Reachable() bool
	Subscribe() (<-chan netmon.Event, func())
}

const (
	defaultGraceDelay = 1500 * time.Millisecond
	defaultInterval   = 5 * time.Minute
)

type Orchestrator struct {
	store    *repository.Store
	boundary Boundary
	net      Reachability
	logger   *zap.Logger
	ownerID  string

	graceDelay time.Duration
	interval   time.Duration
	onProgress func(float64)

	mu        sync.Mutex
	state     State
	progress  float64
	summary   Summary
	lastPull  time.Time
	cancelled bool

	syncNowCh chan struct{}
}

type Option func(*Orchestrator)

// WithGraceDelay overrides the settle delay between a restored edge and the
// sync it triggers.
func WithGraceDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.graceDelay = d }
}

// WithInterval overrides the periodic autosync interval.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

// WithProgress registers a callback invoked with a fraction in [0, 1] after
// each record and after the download pass. Values never decrease within one
// run.
func WithProgress(fn func(float64)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func New(store *repository.Store, boundary Boundary, net Reachability, ownerID string, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		boundary:   boundary,
		net:        net,
		logger:     logger,
		ownerID:    ownerID,
		graceDelay: defaultGraceDelay,
		interval:   defaultInterval,
		syncNowCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// LastSummary returns the outcome of the most recent finished run.
func (o *Orchestrator) LastSummary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// SyncNow requests a run. Non-blocking; if a request is already pending or a
// run is in flight, the extra trigger is dropped, not queued.
func (o *Orchestrator) SyncNow() {
	if o.State() == StateSyncing {
		return
	}
	select {
	case o.syncNowCh <- struct{}{}:
	default:
	}
}

// Cancel moves a running sync back to idle. Best-effort: the in-flight
// network call finishes on its own, and records already acknowledged stay
// marked synced.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateSyncing {
		return
	}
	o.cancelled = true
	o.state = StateIdle
	o.logger.Info("sync cancelled")
}

// Run drives the trigger loop until ctx is done: restored edges (after the
// grace delay), the periodic timer while reachable, and manual requests.
func (o *Orchestrator) Run(ctx context.Context) {
	events, unsubscribe := o.net.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Info("sync orchestrator started",
		zap.Duration("interval", o.interval),
		zap.Duration("grace_delay", o.graceDelay))

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind != netmon.EventRestored {
				continue
			}
			// Let the connection settle before piling work on it.
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.graceDelay):
			}
			o.trigger(ctx, "restored")
		case <-ticker.C:
			if o.net.Reachable() {
				o.trigger(ctx, "periodic")
			}
		case <-o.syncNowCh:
			o.trigger(ctx, "manual")
		}
	}
}

// trigger starts a run unless one is already in flight, in which case the
// trigger is dropped. That is single coarse mutual exclusion, not a queue.
func (o *Orchestrator) trigger(ctx context.Context, cause string) {
	o.mu.Lock()
	if o.state == StateSyncing {
		o.mu.Unlock()
		o.logger.Debug("sync trigger ignored, run in progress", zap.String("cause", cause))
		return
	}
	o.state = StateSyncing
	o.progress = 0
	o.cancelled = false
	o.mu.Unlock()

	o.logger.Info("sync started", zap.String("cause", cause))
	go o.runSync(ctx)
}

func (o *Orchestrator) runSync(ctx context.Context) {
	startedAt := time.Now().UTC()

	snapshot, err := o.store.ListUnsynced(ctx, o.ownerID)
	if err != nil {
		o.logger.Error("failed to snapshot unsynced records", zap.Error(err))
		o.finish(StateFailed, Summary{})
		return
	}

	summary := Summary{Total: snapshot.Total()}
	steps := summary.Total + 1 // one extra step for the download pass
	done := 0

	// Upload pass, in stable kind order: memos, then todos, then events.
	// One record failing never aborts the batch; losing the network does.
	for _, memo := range snapshot.Memos {
		if !o.uploadStep(ctx, &summary, &done, steps, func() (string, time.Time, error) {
			return memo.ID, memo.UpdatedAt, o.boundary.PushMemo(ctx, memo)
		}, o.markMemoSynced) {
			return
		}
	}
	for _, todo := range snapshot.Todos {
		if !o.uploadStep(ctx, &summary, &done, steps, func() (string, time.Time, error) {
			return todo.ID, todo.UpdatedAt, o.boundary.PushTodo(ctx, todo)
		}, o.markTodoSynced) {
			return
		}
	}
	for _, event := range snapshot.Events {
		if !o.uploadStep(ctx, &summary, &done, steps, func() (string, time.Time, error) {
			return event.ID, event.UpdatedAt, o.boundary.PushEvent(ctx, event)
		}, o.markEventSynced) {
			return
		}
	}

	// Download pass: server copies win only when strictly newer.
	if o.isCancelled() {
		return
	}
	if !o.net.Reachable() {
		o.logger.Warn("reachability lost before download pass")
		o.finish(StateFailed, summary)
		return
	}

	o.mu.Lock()
	since := o.lastPull
	o.mu.Unlock()

	changes, err := o.boundary.Pull(ctx, o.ownerID, since)
	if err != nil {
		o.logger.Error("download pass failed", zap.Error(err))
		o.finish(StateFailed, summary)
		return
	}
	if err := o.applyChanges(ctx, changes); err != nil {
		o.logger.Error("failed to apply remote changes", zap.Error(err))
		o.finish(StateFailed, summary)
		return
	}

	o.mu.Lock()
	o.lastPull = startedAt
	o.mu.Unlock()

	o.setProgress(1)
	o.finish(StateCompleted, summary)
	o.logger.Info("sync completed",
		zap.Int("total", summary.Total),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed))
}

// uploadStep wraps the per-record protocol: bail out on cancellation or
// reachability loss, otherwise upload, acknowledge, and advance progress.
// Returns false when the run is over.
func (o *Orchestrator) uploadStep(ctx context.Context, summary *Summary, done *int, steps int,
	push func() (string, time.Time, error), mark func(context.Context, string, time.Time) error) bool {

	if o.isCancelled() {
		return false
	}
	if !o.net.Reachable() {
		o.logger.Warn("reachability lost mid-batch, aborting sync")
		o.finish(StateFailed, *summary)
		return false
	}

	id, version, err := push()
	if err != nil {
		summary.Failed++
		o.logger.Warn("record upload failed, leaving unsynced",
			zap.String("id", id), zap.Error(err))
	} else if err := mark(ctx, id, version); err != nil {
		summary.Failed++
		o.logger.Error("failed to mark record synced", zap.String("id", id), zap.Error(err))
	} else {
		summary.Synced++
	}

	*done++
	o.setProgress(float64(*done) / float64(steps))
	return true
}

func (o *Orchestrator) markMemoSynced(ctx context.Context, id string, version time.Time) error {
	return o.store.Memos.MarkSynced(ctx, id, version)
}

func (o *Orchestrator) markTodoSynced(ctx context.Context, id string, version time.Time) error {
	return o.store.Todos.MarkSynced(ctx, id, version)
}

func (o *Orchestrator) markEventSynced(ctx context.Context, id string, version time.Time) error {
	return o.store.Events.MarkSynced(ctx, id, version)
}

func (o *Orchestrator) applyChanges(ctx context.Context, changes *remote.ChangeSet) error {
	for _, memo := range changes.Memos {
		if err := o.store.Memos.ApplyRemote(ctx, memo); err != nil {
			return err
		}
	}
	for _, todo := range changes.Todos {
		if err := o.store.Todos.ApplyRemote(ctx, todo); err != nil {
			return err
		}
	}
	for _, event := range changes.Events {
		if err := o.store.Events.ApplyRemote(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

func (o *Orchestrator) setProgress(p float64) {
	o.mu.Lock()
	if p > o.progress {
		o.progress = p
	}
	fn := o.onProgress
	value := o.progress
	o.mu.Unlock()

	if fn != nil {
		fn(value)
	}
}

// finish records the terminal state of a run. A cancelled run already sits
// in idle and keeps it.
func (o *Orchestrator) finish(state State, summary Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary = summary
	if o.cancelled {
		return
	}
	o.state = state
}
