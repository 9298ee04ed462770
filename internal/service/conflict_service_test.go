package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/conflict"
	"github.com/meetsync/meetsync-api/internal/models"
	"github.com/meetsync/meetsync-api/pkg/config"
	appErrors "github.com/meetsync/meetsync-api/pkg/errors"
)

type mockScheduleReader struct {
	schedules map[string][]models.TimeBlock
	err       error
}

func (m *mockScheduleReader) ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schedules[userID], nil
}

type mockUserReader struct {
	users map[string]*models.User
	err   error
}

func (m *mockUserReader) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type mockConflictCache struct {
	store map[string]*ConflictReport
	sets  int
}

func (m *mockConflictCache) Get(ctx context.Context, key string, dest interface{}) error {
	report, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*ConflictReport) = *report
	return nil
}

func (m *mockConflictCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string]*ConflictReport)
	}
	m.store[key] = value.(*ConflictReport)
	m.sets++
	return nil
}

func newConflictService(schedules *mockScheduleReader, users *mockUserReader, cache *mockConflictCache) *ConflictService {
	var c conflictCache
	if cache != nil {
		c = cache
	}
	return NewConflictService(schedules, users, c, nil, validator.New(), zap.NewNop(), config.ConflictConfig{
		CacheTTL:        time.Minute,
		MaxParticipants: 50,
	})
}

func TestCheckEventNoConflicts(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &mockScheduleReader{schedules: map[string][]models.TimeBlock{
		"u1": {{UserID: "u1", Date: "2026-09-01", StartHour: 9, EndHour: 10, Type: models.BlockBusy}},
	}}
	svc := newConflictService(schedules, users, nil)

	report, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "14:00",
		Participants: []string{"alice@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SeverityNone, report.Severity)
	assert.Equal(t, "No conflicts", report.Message)
	assert.Empty(t, report.Conflicts)
	assert.Empty(t, report.UnresolvedEmails)
	assert.False(t, report.HasHardConflict())
}

func TestCheckEventWarningOnBusyOverlap(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &mockScheduleReader{schedules: map[string][]models.TimeBlock{
		"u1": {{UserID: "u1", Date: "2026-09-01", StartHour: 14, EndHour: 16, Title: "Focus", Type: models.BlockBusy}},
	}}
	svc := newConflictService(schedules, users, nil)

	report, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "14:00",
		Participants: []string{"alice@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SeverityWarning, report.Severity)
	assert.Len(t, report.Conflicts["u1"], 1)
	assert.Equal(t, "alice@example.com", report.Emails["u1"])
	assert.Equal(t, "Focus (14:00 - 16:00)", report.Messages["u1"])
	assert.False(t, report.HasHardConflict())
}

func TestCheckEventErrorOnCommittedEvent(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
		"bob@example.com":   {ID: "u2", Email: "bob@example.com"},
	}}
	schedules := &mockScheduleReader{schedules: map[string][]models.TimeBlock{
		"u1": {{UserID: "u1", Date: "2026-09-01", StartHour: 14, EndHour: 15, Title: "Standup", Type: models.BlockEvent}},
		"u2": {{UserID: "u2", Date: "2026-09-01", StartHour: 13, EndHour: 15, Title: "Gym", Type: models.BlockActivity}},
	}}
	svc := newConflictService(schedules, users, nil)

	report, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "14:00",
		Duration:     2,
		Participants: []string{"alice@example.com", "bob@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SeverityError, report.Severity)
	assert.Len(t, report.Conflicts, 2)
	assert.True(t, report.HasHardConflict())
}

func TestCheckEventDropsUnknownEmails(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &mockScheduleReader{schedules: map[string][]models.TimeBlock{}}
	svc := newConflictService(schedules, users, nil)

	report, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "10:00",
		Participants: []string{"alice@example.com", "ghost@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost@example.com"}, report.UnresolvedEmails)
	assert.Equal(t, conflict.SeverityNone, report.Severity)
}

func TestCheckEventAbortsOnScheduleFetchFailure(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &mockScheduleReader{err: errors.New("connection refused")}
	svc := newConflictService(schedules, users, nil)

	_, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "10:00",
		Participants: []string{"alice@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
}

func TestCheckEventRejectsInvalidPayload(t *testing.T) {
	svc := newConflictService(&mockScheduleReader{}, &mockUserReader{}, nil)

	_, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "10:00",
		Participants: []string{"not-an-email"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCheckEventCachesReport(t *testing.T) {
	users := &mockUserReader{users: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &mockScheduleReader{schedules: map[string][]models.TimeBlock{}}
	cache := &mockConflictCache{}
	svc := newConflictService(schedules, users, cache)

	req := CheckConflictsRequest{Date: "2026-09-01", Time: "10:00", Participants: []string{"alice@example.com"}}

	first, err := svc.CheckEvent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Second call is served from the cache; a store failure would surface
	// otherwise.
	schedules.err = errors.New("connection refused")
	second, err := svc.CheckEvent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Severity, second.Severity)
	assert.Equal(t, 1, cache.sets)
}

func TestCheckEventEnforcesParticipantCap(t *testing.T) {
	svc := NewConflictService(&mockScheduleReader{}, &mockUserReader{}, nil, nil, validator.New(), zap.NewNop(), config.ConflictConfig{MaxParticipants: 1})

	_, err := svc.CheckEvent(context.Background(), CheckConflictsRequest{
		Date:         "2026-09-01",
		Time:         "10:00",
		Participants: []string{"a@example.com", "b@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
