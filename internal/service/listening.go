package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/id"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/validation"
)

// ListeningService records playback activity. Events apply to the local
// position immediately and queue for upload; the server learns about
// them on the next push.
type ListeningService struct {
	store      *store.Store
	validate   *validation.Validator
	logger     *slog.Logger
	deviceID   string
	deviceName string
}

// NewListeningService creates a new listening service.
func NewListeningService(st *store.Store, validate *validation.Validator, deviceID, deviceName string, logger *slog.Logger) *ListeningService {
	return &ListeningService{
		store:      st,
		validate:   validate,
		logger:     logger,
		deviceID:   deviceID,
		deviceName: deviceName,
	}
}

// RecordEventRequest contains the data for recording a listening event.
type RecordEventRequest struct {
	BookID          string    `json:"book_id" validate:"required"`
	StartPositionMs int64     `json:"start_position_ms" validate:"gte=0"`
	EndPositionMs   int64     `json:"end_position_ms" validate:"gtfield=StartPositionMs"`
	StartedAt       time.Time `json:"started_at" validate:"required"`
	EndedAt         time.Time `json:"ended_at" validate:"required"`
	PlaybackSpeed   float32   `json:"playback_speed" validate:"gt=0,lte=4"`
}

// RecordEventResponse contains the created event and updated position.
type RecordEventResponse struct {
	Event    *domain.ListeningEvent   `json:"event"`
	Position *domain.PlaybackPosition `json:"position"`
}

// RecordEvent records a listening event, advances the local playback
// position, and queues the event for upload.
func (s *ListeningService) RecordEvent(ctx context.Context, req RecordEventRequest) (*RecordEventResponse, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	book, err := s.store.Books.Get(ctx, req.BookID)
	if err != nil {
		return nil, err
	}

	eventID, err := id.Generate("evt")
	if err != nil {
		return nil, fmt.Errorf("generate event ID: %w", err)
	}

	event := domain.NewListeningEvent(
		eventID,
		req.BookID,
		req.StartPositionMs,
		req.EndPositionMs,
		req.StartedAt,
		req.EndedAt,
		req.PlaybackSpeed,
		s.deviceID,
		s.deviceName,
	)

	position, err := s.store.Positions.Get(ctx, req.BookID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		position = domain.NewPlaybackPosition(event, book.TotalDuration)
	case err != nil:
		return nil, err
	default:
		position.UpdateFromEvent(event, book.TotalDuration)
	}

	if err := s.store.Positions.Put(ctx, position); err != nil {
		return nil, fmt.Errorf("store position: %w", err)
	}

	op, err := newOperation(domain.OpListeningEvent, event.ID, event)
	if err != nil {
		return nil, err
	}
	if err := s.store.Queue.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue event: %w", err)
	}

	s.logDebug("recorded listening event",
		"event_id", event.ID,
		"book_id", req.BookID,
		"duration_ms", event.DurationMs,
		"progress", position.Progress,
	)

	return &RecordEventResponse{Event: event, Position: position}, nil
}

// GetPosition retrieves the playback position for a book.
func (s *ListeningService) GetPosition(ctx context.Context, bookID string) (*domain.PlaybackPosition, error) {
	return s.store.Positions.Get(ctx, bookID)
}

// ListInProgress returns unfinished positions, most recently played first.
func (s *ListeningService) ListInProgress(ctx context.Context) ([]*domain.PlaybackPosition, error) {
	positions, err := s.store.Positions.List(ctx)
	if err != nil {
		return nil, err
	}

	inProgress := positions[:0]
	for _, pos := range positions {
		if !pos.IsFinished {
			inProgress = append(inProgress, pos)
		}
	}
	slices.SortFunc(inProgress, func(a, b *domain.PlaybackPosition) int {
		return b.LastPlayedAt.Compare(a.LastPlayedAt)
	})
	return inProgress, nil
}

// ReportPosition queues the book's current position for the server, for
// features that read positions directly (cross-device resume hints).
func (s *ListeningService) ReportPosition(ctx context.Context, bookID string) error {
	position, err := s.store.Positions.Get(ctx, bookID)
	if err != nil {
		return err
	}

	payload := domain.PositionUpdatePayload{
		BookID:            bookID,
		CurrentPositionMs: position.CurrentPositionMs,
		Progress:          position.Progress,
		IsFinished:        position.IsFinished,
	}
	op, err := newOperation(domain.OpPlaybackPosition, bookID, payload)
	if err != nil {
		return err
	}
	if err := s.store.Queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("enqueue position update: %w", err)
	}
	return nil
}

// GetPreferences returns the user's playback preferences.
func (s *ListeningService) GetPreferences(ctx context.Context) (*domain.UserPreferences, error) {
	return s.store.Preferences.Get(ctx)
}

// UpdatePreferencesRequest carries edited preference fields.
type UpdatePreferencesRequest struct {
	PlaybackSpeed     *float32 `json:"playback_speed,omitempty" validate:"omitempty,gt=0,lte=4"`
	SkipForwardSec    *int     `json:"skip_forward_sec,omitempty" validate:"omitempty,gte=5,lte=120"`
	SkipBackSec       *int     `json:"skip_back_sec,omitempty" validate:"omitempty,gte=5,lte=120"`
	PreferredLanguage *string  `json:"preferred_language,omitempty" validate:"omitempty,max=50"`
	ShowFinished      *bool    `json:"show_finished,omitempty"`
}

// UpdatePreferences applies preference edits locally and queues them.
func (s *ListeningService) UpdatePreferences(ctx context.Context, req UpdatePreferencesRequest) (*domain.UserPreferences, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	prefs, err := s.store.Preferences.Get(ctx)
	if err != nil {
		return nil, err
	}

	update := domain.PreferencesUpdate{
		PlaybackSpeed:     req.PlaybackSpeed,
		SkipForwardSec:    req.SkipForwardSec,
		SkipBackSec:       req.SkipBackSec,
		PreferredLanguage: req.PreferredLanguage,
		ShowFinished:      req.ShowFinished,
	}

	if update.PlaybackSpeed != nil {
		prefs.PlaybackSpeed = *update.PlaybackSpeed
	}
	if update.SkipForwardSec != nil {
		prefs.SkipForwardSec = *update.SkipForwardSec
	}
	if update.SkipBackSec != nil {
		prefs.SkipBackSec = *update.SkipBackSec
	}
	if update.PreferredLanguage != nil {
		prefs.PreferredLanguage = *update.PreferredLanguage
	}
	if update.ShowFinished != nil {
		prefs.ShowFinished = *update.ShowFinished
	}
	prefs.UpdatedAt = time.Now()

	if err := s.store.Preferences.Put(ctx, prefs); err != nil {
		return nil, fmt.Errorf("store preferences: %w", err)
	}

	op, err := newOperation(domain.OpUserPreferences, "preferences", update)
	if err != nil {
		return nil, err
	}
	if err := s.store.Queue.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue preferences update: %w", err)
	}
	return prefs, nil
}

func (s *ListeningService) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
