package service

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/sync"
)

// SyncService is the façade UI layers trigger and observe sync through.
// Cycles run on their own goroutine; Cancel stops the in-flight cycle
// between operations without corrupting anything.
type SyncService struct {
	orchestrator *sync.Orchestrator
	logger       *slog.Logger

	mu     gosync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncService creates a new sync service.
func NewSyncService(orchestrator *sync.Orchestrator, logger *slog.Logger) *SyncService {
	return &SyncService{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Start launches a sync cycle in the background. Returns ErrConflict if
// one is already running.
func (s *SyncService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.Conflict("sync already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer func() {
			s.mu.Lock()
			s.cancel = nil
			s.mu.Unlock()
			close(done)
		}()

		if err := s.orchestrator.Run(ctx); err != nil && s.logger != nil {
			if errors.Is(err, errors.ErrCancelled) {
				s.logger.Info("sync cycle cancelled")
			} else {
				s.logger.Error("sync cycle failed", "error", err)
			}
		}
	}(s.done)

	return nil
}

// Cancel stops the in-flight cycle and waits for it to wind down. No-op
// when nothing is running.
func (s *SyncService) Cancel() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Status returns the current sync status.
func (s *SyncService) Status() sync.Status {
	return s.orchestrator.Status().Current()
}

// Subscribe registers a status observer. The latest status is delivered
// immediately; the returned cancel function unsubscribes.
func (s *SyncService) Subscribe() (<-chan sync.Status, func()) {
	return s.orchestrator.Status().Subscribe()
}

// ForceFullResync clears every pull cursor so the next cycle re-fetches
// the whole library. Safe to call while idle; rejected mid-cycle.
func (s *SyncService) ForceFullResync(ctx context.Context) error {
	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()
	if running {
		return errors.Conflict("cannot force resync while a cycle is running")
	}
	return s.orchestrator.ForceFullResync(ctx)
}

// ResolveLibraryMismatch answers a reported library identity mismatch.
// Accepting rebinds to the new library (dropping operations queued
// against the old one) and starts a fresh cycle; declining returns the
// engine to idle and leaves local data untouched.
func (s *SyncService) ResolveLibraryMismatch(ctx context.Context, acceptNew bool) error {
	status := s.orchestrator.Status().Current()
	if status.Kind != sync.StatusLibraryMismatch {
		return errors.Conflict("no library mismatch to resolve")
	}

	if !acceptNew {
		s.orchestrator.Status().Publish(sync.Idle())
		return nil
	}

	if err := s.orchestrator.AcceptNewLibrary(ctx, status.ActualLibraryID); err != nil {
		return err
	}
	return s.Start()
}
