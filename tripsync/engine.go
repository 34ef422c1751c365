// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

// Package tripsync keeps the local tripstore and the per-user
// tripcloud document store convergent: a one-shot reconciliation at
// session start, live change listeners per collection, echo
// suppression for self-originated writes, and a debounced outbound
// batch queue.
//
// Conflict resolution is coarse last-write-wins on the updatedAt
// timestamp. During initial reconciliation the remote snapshot is
// ground truth; local records that were never uploaded are discarded
// (a deliberate simplification — offline work created before the first
// sync of a session can lose to another device's reconciliation).
package tripsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hersouls/Travel-v4.0-sub000/internal/auth"
	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

var (
	// ErrSessionInactive is returned by upload/delete entry points when
	// no sync session is running.
	ErrSessionInactive = errors.New("tripsync: no active session")

	// ErrTripNotUploaded is returned when a child record's parent trip
	// has no remote id yet.
	ErrTripNotUploaded = errors.New("tripsync: parent trip has no remote id")

	// ErrUndoExpired is returned by PendingDelete.Undo after the grace
	// window elapsed (or the deletion already fired).
	ErrUndoExpired = errors.New("tripsync: undo window expired")

	// ErrNotFound is returned when a referenced local record is absent.
	ErrNotFound = errors.New("tripsync: record not found")
)

// Phase labels the stages reported through the status observer.
type Phase string

const (
	PhaseChecking Phase = "checking"
	PhaseSyncing  Phase = "syncing"
	PhaseDone     Phase = "done"
	PhaseError    Phase = "error"
)

// Status is one progress report of the engine: the current phase, the
// collection being worked on (when applicable) and a non-fatal error
// if the step degraded.
type Status struct {
	Phase      Phase
	Collection string
	Err        error
}

// Config holds the engine's tuning knobs.
type Config struct {
	// Debounce is the quiet period before the outbound queue flushes.
	Debounce time.Duration
	// FlushThreshold triggers an immediate flush when the queue grows
	// this large. Keep it comfortably below MaxBatchOps.
	FlushThreshold int
	// MaxBatchOps caps the operation count of one batch commit.
	MaxBatchOps int
	// UndoGrace is the window during which a deferred deletion can be
	// undone before its remote counterpart is deleted.
	UndoGrace time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() *Config {
	return &Config{
		Debounce:       500 * time.Millisecond,
		FlushThreshold: 400,
		MaxBatchOps:    tripcloud.MaxBatchOps,
		UndoGrace:      30 * time.Second,
	}
}

// Engine is the synchronization engine. Construct one per local store
// with New; at most one session (one authenticated user) is active at
// a time, and starting a new session fully stops the previous one.
type Engine struct {
	local  *tripstore.Store
	remote tripcloud.Provider
	config *Config
	logger *slog.Logger

	mu      sync.Mutex
	session *session
	active  bool

	activeObs *observerList[bool]
	updateObs *observerList[string]
	statusObs *observerList[Status]
}

// session carries the per-user transient state torn down on stop.
type session struct {
	engine *Engine
	userID string
	store  tripcloud.Store
	sup    *suppressor
	refs   *crossRefs
	queue  *outboundQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []tripcloud.Subscription

	deferredMu sync.Mutex
	deferred   map[*PendingDelete]struct{}
}

// New creates an engine over the injected stores.
func New(local *tripstore.Store, remote tripcloud.Provider, config *Config, logger *slog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		local:     local,
		remote:    remote,
		config:    config,
		logger:    logger,
		activeObs: newObserverList[bool](),
		updateObs: newObserverList[string](),
		statusObs: newObserverList[Status](),
	}
}

// OnActiveChange registers a callback fired when a session starts or
// stops. Returns the unsubscribe func.
func (e *Engine) OnActiveChange(fn func(active bool)) func() {
	return e.activeObs.subscribe(fn)
}

// OnSyncUpdate registers a callback fired with the collection name
// after any local mutation originating from reconciliation.
func (e *Engine) OnSyncUpdate(fn func(collection string)) func() {
	return e.updateObs.subscribe(fn)
}

// OnSyncStatus registers a callback for phase/progress/error reports.
func (e *Engine) OnSyncStatus(fn func(Status)) func() {
	return e.statusObs.subscribe(fn)
}

// IsActive reports whether a session is running.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) activeSession() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Start establishes a sync session for the user: any previous session
// is stopped first, the initial reconciliation runs to completion, and
// the live listeners are attached. Only a setup failure (no remote
// store, no listener) returns an error; per-collection reconciliation
// failures are reported through the status observer and logged.
func (e *Engine) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("tripsync: user id required")
	}
	if ctxUserID, ok := auth.UserID(ctx); ok && ctxUserID != userID {
		return fmt.Errorf("tripsync: user id %q does not match the authenticated identity", userID)
	}
	e.Stop()

	store, err := e.remote.ForUser(ctx, userID)
	if err != nil {
		err = fmt.Errorf("failed to open remote store: %w", err)
		e.statusObs.notify(Status{Phase: PhaseError, Err: err})
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		engine:   e,
		userID:   userID,
		store:    store,
		sup:      newSuppressor(),
		refs:     newCrossRefs(),
		ctx:      sessionCtx,
		cancel:   cancel,
		deferred: make(map[*PendingDelete]struct{}),
	}
	s.queue = newOutboundQueue(store, s.sup, e.config, e.logger, func(err error) {
		e.statusObs.notify(Status{Phase: PhaseError, Err: err})
	})

	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	s.initialSync(ctx)

	if err := s.startListeners(); err != nil {
		err = fmt.Errorf("failed to start change listeners: %w", err)
		e.statusObs.notify(Status{Phase: PhaseError, Err: err})
		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
		e.teardown(s)
		return err
	}

	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	e.activeObs.notify(true)
	if deviceID, ok := auth.DeviceID(ctx); ok {
		e.logger.Info("sync session started", "user_id", userID, "device_id", deviceID)
	} else {
		e.logger.Info("sync session started", "user_id", userID)
	}
	return nil
}

// Stop tears down the active session: outstanding deferred deletions
// fire into the queue, listeners are unsubscribed, the queue is
// flushed synchronously (nothing queued is dropped) and transient
// state is cleared. Safe to call when no session is active.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.session = nil
	wasActive := e.active
	e.active = false
	e.mu.Unlock()

	if s == nil {
		return
	}
	e.teardown(s)
	if wasActive {
		e.activeObs.notify(false)
		e.logger.Info("sync session stopped", "user_id", s.userID)
	}
}

func (e *Engine) teardown(s *session) {
	s.fireDeferred()
	for _, sub := range s.subs {
		sub.Close()
	}
	s.cancel()
	s.wg.Wait()
	s.queue.Flush(context.Background())
	s.sup.clear()
}

// initialSync runs the phase-ordered reconciliation: parents before
// dependents, each phase independently fault-tolerant.
func (s *session) initialSync(ctx context.Context) {
	e := s.engine
	e.statusObs.notify(Status{Phase: PhaseChecking})

	phases := []struct {
		collection string
		run        func(context.Context) error
	}{
		{tripcloud.CollectionTrips, s.reconcileTrips},
		{tripcloud.CollectionPlans, s.reconcilePlans},
		{tripcloud.CollectionPlaces, s.reconcilePlaces},
		{tripcloud.CollectionSettings, s.reconcileSettings},
		{tripcloud.CollectionSegments, s.reconcileSegments},
	}
	for _, phase := range phases {
		e.statusObs.notify(Status{Phase: PhaseSyncing, Collection: phase.collection})
		if err := phase.run(ctx); err != nil {
			e.logger.Error("initial sync phase failed",
				"collection", phase.collection, "error", err)
			e.statusObs.notify(Status{Phase: PhaseSyncing, Collection: phase.collection, Err: err})
		}
	}
	e.statusObs.notify(Status{Phase: PhaseDone})
}
