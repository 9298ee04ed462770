package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/conflict"
	"github.com/meetsync/meetsync-api/internal/models"
	"github.com/meetsync/meetsync-api/pkg/config"
	appErrors "github.com/meetsync/meetsync-api/pkg/errors"
)

type conflictScheduleReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error)
}

type conflictUserReader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type conflictCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CheckConflictsRequest describes a proposed event to reconcile against
// participant schedules.
type CheckConflictsRequest struct {
	Date         string   `json:"date" validate:"required"`
	Time         string   `json:"time" validate:"required"`
	Duration     int      `json:"duration" validate:"omitempty,min=1"`
	Participants []string `json:"participants" validate:"required,min=1,dive,email"`
}

// ParticipantSchedule pairs a resolved participant with their schedule.
type ParticipantSchedule struct {
	Email    string             `json:"email"`
	Schedule []models.TimeBlock `json:"schedule"`
}

// ConflictReport is the outcome of a conflict check.
type ConflictReport struct {
	Conflicts        map[string][]models.TimeBlock `json:"conflicts"`
	Emails           map[string]string             `json:"emails"`
	Messages         map[string]string             `json:"messages"`
	UnresolvedEmails []string                      `json:"unresolved_emails,omitempty"`
	Severity         conflict.Severity             `json:"severity"`
	Message          string                        `json:"message"`
}

// HasHardConflict reports whether the check found a committed-event overlap.
func (r *ConflictReport) HasHardConflict() bool {
	return r != nil && r.Severity == conflict.SeverityError
}

// ConflictService gathers participant schedules and runs the conflict
// engine over them.
type ConflictService struct {
	schedules conflictScheduleReader
	users     conflictUserReader
	cache     conflictCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.ConflictConfig
}

// NewConflictService instantiates ConflictService. cache and metrics may be
// nil.
func NewConflictService(schedules conflictScheduleReader, users conflictUserReader, cache conflictCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg config.ConflictConfig) *ConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		schedules: schedules,
		users:     users,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// GetParticipantSchedules resolves emails to users and fetches every
// resolved participant's schedule. Unknown emails are dropped (and
// reported) rather than failing the check; any schedule fetch failure
// aborts the whole gather so a conflict check never runs on partial data.
func (s *ConflictService) GetParticipantSchedules(ctx context.Context, emails []string) (map[string]ParticipantSchedule, []string, error) {
	users := make([]*models.User, 0, len(emails))
	var unresolved []string
	for _, email := range emails {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Debug("participant email not resolvable", zap.String("email", email))
				unresolved = append(unresolved, email)
				continue
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to resolve participant")
		}
		users = append(users, user)
	}

	schedules := make(map[string]ParticipantSchedule, len(users))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fetchErr error
	)
	for _, user := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			schedule, err := s.schedules.ListByUser(ctx, u.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fetchErr == nil {
					fetchErr = err
				}
				return
			}
			schedules[u.ID] = ParticipantSchedule{Email: u.Email, Schedule: schedule}
		}(user)
	}
	wg.Wait()

	if fetchErr != nil {
		return nil, nil, appErrors.Wrap(fetchErr, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to fetch participant schedule")
	}
	return schedules, unresolved, nil
}

// CheckEvent runs the full conflict check for a proposed event.
func (s *ConflictService) CheckEvent(ctx context.Context, req CheckConflictsRequest) (*ConflictReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	if s.cfg.MaxParticipants > 0 && len(req.Participants) > s.cfg.MaxParticipants {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d participants per check", s.cfg.MaxParticipants))
	}

	duration := req.Duration
	if duration < 1 {
		duration = 1
	}

	cacheKey := s.cacheKey(req.Date, req.Time, duration, req.Participants)
	if s.cache != nil {
		var cached ConflictReport
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.ObserveCacheHit()
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.ObserveCacheMiss()
		}
	}

	schedules, unresolved, err := s.GetParticipantSchedules(ctx, req.Participants)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]models.TimeBlock, len(schedules))
	emails := make(map[string]string, len(schedules))
	for userID, ps := range schedules {
		byUser[userID] = ps.Schedule
		emails[userID] = ps.Email
	}

	proposed := conflict.ProposedEvent{Date: req.Date, Time: req.Time, Duration: duration}
	conflictsByUser := conflict.CheckParticipantConflicts(proposed, byUser)

	messages := make(map[string]string, len(conflictsByUser))
	conflictEmails := make(map[string]string, len(conflictsByUser))
	for userID, conflicts := range conflictsByUser {
		messages[userID] = conflict.FormatConflictMessage(conflicts)
		conflictEmails[userID] = emails[userID]
	}

	flattened := conflict.Flatten(conflictsByUser)
	report := &ConflictReport{
		Conflicts:        conflictsByUser,
		Emails:           conflictEmails,
		Messages:         messages,
		UnresolvedEmails: unresolved,
		Severity:         conflict.GetConflictSeverity(flattened),
		Message:          conflict.FormatConflictMessage(flattened),
	}

	if s.metrics != nil {
		s.metrics.ObserveConflictCheck(string(report.Severity))
	}
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache conflict report", zap.Error(err))
		}
	}

	s.logger.Info("conflict check completed",
		zap.String("date", req.Date),
		zap.String("time", req.Time),
		zap.Int("participants", len(req.Participants)),
		zap.Int("conflicting", len(conflictsByUser)),
		zap.String("severity", string(report.Severity)),
	)
	return report, nil
}

func (s *ConflictService) cacheKey(date, timeStr string, duration int, participants []string) string {
	sorted := make([]string, len(participants))
	for i, p := range participants {
		sorted[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("conflict:%s:%s:%d:%s", date, timeStr, duration, hex.EncodeToString(sum[:8]))
}
