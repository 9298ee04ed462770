package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/conflict"
	"github.com/meetsync/meetsync-api/internal/models"
	appErrors "github.com/meetsync/meetsync-api/pkg/errors"
	"github.com/meetsync/meetsync-api/pkg/jobs"
)

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	ListForParticipant(ctx context.Context, userID, email string) ([]models.Event, error)
	UpdateResponses(ctx context.Context, id string, responses models.ResponseMap, acceptedIDs pq.StringArray) error
}

type eventUserReader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type eventScheduleWriter interface {
	Create(ctx context.Context, block *models.TimeBlock) error
	DeleteByEvent(ctx context.Context, eventID, userID string) error
}

type conflictChecker interface {
	CheckEvent(ctx context.Context, req CheckConflictsRequest) (*ConflictReport, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type eventCache interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Job types processed by HandleScheduleJob.
const (
	JobScheduleAppend = "schedule.append"
	JobScheduleRemove = "schedule.remove"
)

// ScheduleJobPayload carries the derived-block write that follows event
// creation or an accepted RSVP.
type ScheduleJobPayload struct {
	UserID  string
	EventID string
	Date    string
	Time    string
	Title   string
}

// CreateEventRequest describes payload for proposing an event.
type CreateEventRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	Date         string   `json:"date" validate:"required"`
	Time         string   `json:"time" validate:"required"`
	Duration     int      `json:"duration" validate:"omitempty,min=1"`
	Participants []string `json:"participants" validate:"omitempty,dive,email"`
}

// RespondRequest records an RSVP.
type RespondRequest struct {
	Response models.RSVP `json:"response" validate:"required,oneof=yes no maybe"`
}

// ConflictError carries the report of a hard scheduling conflict that
// blocked event creation.
type ConflictError struct {
	Report *ConflictReport
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || e.Report == nil {
		return "scheduling conflict"
	}
	return e.Report.Message
}

// EventService coordinates the event directory: proposals, listings and
// RSVP state, plus the derived schedule writes that follow them.
type EventService struct {
	repo      eventRepository
	users     eventUserReader
	schedules eventScheduleWriter
	checker   conflictChecker
	queue     jobEnqueuer
	cache     eventCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService instantiates EventService. queue may be nil, in which
// case derived schedule writes happen synchronously. cache may be nil.
func NewEventService(repo eventRepository, users eventUserReader, schedules eventScheduleWriter, checker conflictChecker, queue jobEnqueuer, cache eventCache, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		repo:      repo,
		users:     users,
		schedules: schedules,
		checker:   checker,
		queue:     queue,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Create proposes an event. When participants are listed, a conflict check
// runs first: a hard conflict (committed event anywhere) blocks creation,
// advisory conflicts are returned alongside the created event. The creator
// gains a derived event-type block through the background writer.
func (s *EventService) Create(ctx context.Context, actor *models.JWTClaims, req CreateEventRequest) (*models.Event, *ConflictReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	duration := req.Duration
	if duration < 1 {
		duration = 1
	}

	var report *ConflictReport
	if len(req.Participants) > 0 && s.checker != nil {
		var err error
		report, err = s.checker.CheckEvent(ctx, CheckConflictsRequest{
			Date:         req.Date,
			Time:         req.Time,
			Duration:     duration,
			Participants: req.Participants,
		})
		if err != nil {
			return nil, nil, err
		}
		if report.HasHardConflict() {
			return nil, report, &ConflictError{Report: report}
		}
	}

	participantIDs := s.resolveParticipants(ctx, req.Participants)

	event := &models.Event{
		Title:              req.Title,
		Description:        req.Description,
		Date:               req.Date,
		Time:               req.Time,
		Duration:           duration,
		CreatedBy:          actor.UserID,
		ParticipantsEmails: req.Participants,
		ParticipantsIDs:    participantIDs,
		AcceptedIDs:        pq.StringArray{},
		Responses:          models.ResponseMap{},
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.enqueueScheduleWrite(ctx, JobScheduleAppend, ScheduleJobPayload{
		UserID:  actor.UserID,
		EventID: event.ID,
		Date:    event.Date,
		Time:    event.Time,
		Title:   event.Title,
	})

	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("created_by", actor.UserID),
		zap.Int("participants", len(req.Participants)),
	)
	return event, report, nil
}

// List returns events the caller created or is invited to.
func (s *EventService) List(ctx context.Context, actor *models.JWTClaims) ([]models.Event, error) {
	events, err := s.repo.ListForParticipant(ctx, actor.UserID, actor.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, nil
}

// Respond records the caller's RSVP. Accepting derives an event-type block
// in the caller's schedule; moving away from yes removes it again.
func (s *EventService) Respond(ctx context.Context, actor *models.JWTClaims, eventID string, req RespondRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}

	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch event")
	}

	if !s.isParticipant(event, actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not invited to this event")
	}

	wasAccepted := containsString(event.AcceptedIDs, actor.UserID)

	if event.Responses == nil {
		event.Responses = models.ResponseMap{}
	}
	event.Responses[actor.UserID] = req.Response

	accepted := make(pq.StringArray, 0, len(event.AcceptedIDs)+1)
	for _, id := range event.AcceptedIDs {
		if id != actor.UserID {
			accepted = append(accepted, id)
		}
	}
	if req.Response == models.RSVPYes {
		accepted = append(accepted, actor.UserID)
	}
	event.AcceptedIDs = accepted

	if err := s.repo.UpdateResponses(ctx, event.ID, event.Responses, event.AcceptedIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record response")
	}

	payload := ScheduleJobPayload{
		UserID:  actor.UserID,
		EventID: event.ID,
		Date:    event.Date,
		Time:    event.Time,
		Title:   event.Title,
	}
	if req.Response == models.RSVPYes && !wasAccepted {
		s.enqueueScheduleWrite(ctx, JobScheduleAppend, payload)
	} else if req.Response != models.RSVPYes && wasAccepted {
		s.enqueueScheduleWrite(ctx, JobScheduleRemove, payload)
	}

	s.logger.Info("rsvp recorded",
		zap.String("event_id", event.ID),
		zap.String("user_id", actor.UserID),
		zap.String("response", string(req.Response)),
	)
	return event, nil
}

// HandleScheduleJob processes derived schedule writes from the jobs queue.
func (s *EventService) HandleScheduleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ScheduleJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}

	switch job.Type {
	case JobScheduleAppend:
		if err := s.appendDerivedBlock(ctx, payload); err != nil {
			return err
		}
	case JobScheduleRemove:
		if err := s.schedules.DeleteByEvent(ctx, payload.EventID, payload.UserID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown schedule job type %q", job.Type)
	}

	// The derived write changed the user's schedule behind ScheduleService,
	// so its read-through cache and any conflict reports computed over the
	// old schedule are stale now.
	s.invalidateSchedules(ctx, payload.UserID)
	return nil
}

func (s *EventService) invalidateSchedules(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, scheduleCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate schedule cache", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, "conflict:*"); err != nil {
		s.logger.Warn("failed to invalidate conflict cache", zap.Error(err))
	}
}

func (s *EventService) appendDerivedBlock(ctx context.Context, payload ScheduleJobPayload) error {
	hour := conflict.TimeStringToHour(payload.Time)
	block := &models.TimeBlock{
		UserID:    payload.UserID,
		Date:      payload.Date,
		StartHour: hour,
		EndHour:   hour + 1,
		Title:     payload.Title,
		Type:      models.BlockEvent,
		EventID:   &payload.EventID,
	}
	return s.schedules.Create(ctx, block)
}

func (s *EventService) enqueueScheduleWrite(ctx context.Context, jobType string, payload ScheduleJobPayload) {
	if s.queue == nil {
		job := jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
		if err := s.HandleScheduleJob(ctx, job); err != nil {
			s.logger.Warn("derived schedule write failed", zap.String("type", jobType), zap.Error(err))
		}
		return
	}

	err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload})
	if err != nil {
		// Best effort: the event itself is already committed.
		s.logger.Warn("failed to enqueue derived schedule write", zap.String("type", jobType), zap.Error(err))
	}
}

func (s *EventService) resolveParticipants(ctx context.Context, emails []string) pq.StringArray {
	ids := make(pq.StringArray, 0, len(emails))
	for _, email := range emails {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("failed to resolve participant", zap.String("email", email), zap.Error(err))
			}
			continue
		}
		ids = append(ids, user.ID)
	}
	return ids
}

func (s *EventService) isParticipant(event *models.Event, actor *models.JWTClaims) bool {
	if event.CreatedBy == actor.UserID {
		return true
	}
	if containsString(event.ParticipantsIDs, actor.UserID) {
		return true
	}
	return containsString(event.ParticipantsEmails, actor.Email)
}

func containsString(list pq.StringArray, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
