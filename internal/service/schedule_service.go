package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/availability"
	"github.com/meetsync/meetsync-api/internal/models"
	appErrors "github.com/meetsync/meetsync-api/pkg/errors"
	"github.com/meetsync/meetsync-api/pkg/export"
)

type scheduleRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.TimeBlock, error)
	FindByID(ctx context.Context, id string) (*models.TimeBlock, error)
	Create(ctx context.Context, block *models.TimeBlock) error
	BulkCreate(ctx context.Context, blocks []models.TimeBlock) error
	Update(ctx context.Context, block *models.TimeBlock) error
	Delete(ctx context.Context, id string) error
}

type scheduleCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateBlockRequest describes payload for adding a time block.
type CreateBlockRequest struct {
	Date      string           `json:"date" validate:"required"`
	StartHour int              `json:"start_hour" validate:"min=0,max=23"`
	EndHour   int              `json:"end_hour" validate:"required,min=1,max=24,gtfield=StartHour"`
	Title     string           `json:"title"`
	Type      models.BlockType `json:"type" validate:"omitempty,oneof=available busy event activity"`
}

// UpdateBlockRequest modifies an existing time block.
type UpdateBlockRequest struct {
	Date      string           `json:"date" validate:"required"`
	StartHour int              `json:"start_hour" validate:"min=0,max=23"`
	EndHour   int              `json:"end_hour" validate:"required,min=1,max=24,gtfield=StartHour"`
	Title     string           `json:"title"`
	Type      models.BlockType `json:"type" validate:"omitempty,oneof=available busy event activity"`
}

// SaveSelectionRequest persists a pending availability selection.
type SaveSelectionRequest struct {
	Slots     []availability.Slot `json:"slots" validate:"required,min=1,dive"`
	Confirmed bool                `json:"confirmed"`
}

const scheduleCacheTTL = 5 * time.Minute

// ScheduleService manages a user's own time blocks.
type ScheduleService struct {
	repo      scheduleRepository
	cache     scheduleCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService. cache may be nil.
func NewScheduleService(repo scheduleRepository, cache scheduleCache, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns the caller's schedule, read through the cache when no
// filter narrows the result.
func (s *ScheduleService) List(ctx context.Context, userID string, filter models.ScheduleFilter) ([]models.TimeBlock, error) {
	filter.UserID = userID
	unfiltered := filter.Date == "" && filter.FromDate == "" && filter.ToDate == "" && filter.Type == ""

	if unfiltered && s.cache != nil {
		var cached []models.TimeBlock
		if err := s.cache.Get(ctx, scheduleCacheKey(userID), &cached); err == nil {
			return cached, nil
		}
	}

	blocks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule")
	}

	if unfiltered && s.cache != nil {
		if err := s.cache.Set(ctx, scheduleCacheKey(userID), blocks, scheduleCacheTTL); err != nil {
			s.logger.Warn("failed to cache schedule", zap.Error(err))
		}
	}
	return blocks, nil
}

// Create adds a time block to the caller's schedule.
func (s *ScheduleService) Create(ctx context.Context, userID string, req CreateBlockRequest) (*models.TimeBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time block payload")
	}

	blockType := req.Type
	if blockType == "" {
		blockType = models.BlockBusy
	}

	block := &models.TimeBlock{
		UserID:    userID,
		Date:      req.Date,
		StartHour: req.StartHour,
		EndHour:   req.EndHour,
		Title:     req.Title,
		Type:      blockType,
	}
	if err := s.repo.Create(ctx, block); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time block")
	}

	s.invalidate(ctx, userID)
	return block, nil
}

// Update modifies one of the caller's time blocks.
func (s *ScheduleService) Update(ctx context.Context, userID, blockID string, req UpdateBlockRequest) (*models.TimeBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time block payload")
	}

	block, err := s.ownedBlock(ctx, userID, blockID)
	if err != nil {
		return nil, err
	}

	block.Date = req.Date
	block.StartHour = req.StartHour
	block.EndHour = req.EndHour
	block.Title = req.Title
	if req.Type != "" {
		block.Type = req.Type
	}
	if block.Title == "" {
		block.Title = block.Type.DefaultTitle()
	}

	if err := s.repo.Update(ctx, block); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time block")
	}

	s.invalidate(ctx, userID)
	return block, nil
}

// Delete removes one of the caller's time blocks.
func (s *ScheduleService) Delete(ctx context.Context, userID, blockID string) error {
	if _, err := s.ownedBlock(ctx, userID, blockID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, blockID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete time block")
	}
	s.invalidate(ctx, userID)
	return nil
}

// SaveSelection applies the slot-selection policy and persists every
// allowed slot as a one-hour available block. Slots covered by a committed
// event are rejected outright; slots covered by an activity require the
// confirmed flag.
func (s *ScheduleService) SaveSelection(ctx context.Context, userID string, req SaveSelectionRequest) ([]models.TimeBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}

	schedule, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	selection := availability.NewSelection()
	for _, slot := range req.Slots {
		switch availability.ClassifySlot(schedule, slot.Date, slot.Hour) {
		case availability.Blocked:
			return nil, appErrors.Clone(appErrors.ErrSlotBlocked, fmt.Sprintf("slot %s %d:00 is locked by a committed event", slot.Date, slot.Hour))
		case availability.NeedsConfirm:
			if !req.Confirmed {
				return nil, appErrors.Clone(appErrors.ErrConfirmationRequired, fmt.Sprintf("slot %s %d:00 overlaps an activity; confirm to select it", slot.Date, slot.Hour))
			}
		}
		selection.Toggle(slot)
	}

	blocks := selection.Blocks(userID)
	if len(blocks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selection resolved to no slots")
	}

	if err := s.repo.BulkCreate(ctx, blocks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save selection")
	}

	s.invalidate(ctx, userID)
	s.logger.Info("availability selection saved", zap.String("user_id", userID), zap.Int("slots", len(blocks)))
	return blocks, nil
}

// Export renders the caller's schedule as CSV or PDF.
func (s *ScheduleService) Export(ctx context.Context, userID, format string) ([]byte, string, error) {
	blocks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Start", "End", "Title", "Type"},
	}
	for _, b := range blocks {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":  b.Date,
			"Start": fmt.Sprintf("%d:00", b.StartHour),
			"End":   fmt.Sprintf("%d:00", b.EndHour),
			"Title": b.Title,
			"Type":  string(b.Type),
		})
	}

	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "My Schedule")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ScheduleService) ownedBlock(ctx context.Context, userID, blockID string) (*models.TimeBlock, error) {
	block, err := s.repo.FindByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch time block")
	}
	if block.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "time block belongs to another user")
	}
	return block, nil
}

func (s *ScheduleService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, scheduleCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate schedule cache", zap.Error(err))
	}
	// Conflict reports may reference this user's schedule under any
	// participant combination.
	if err := s.cache.DeleteByPattern(ctx, "conflict:*"); err != nil {
		s.logger.Warn("failed to invalidate conflict cache", zap.Error(err))
	}
}

func scheduleCacheKey(userID string) string {
	return "schedule:" + userID
}
