package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/models"
	"github.com/meetsync/meetsync-api/internal/service"
	"github.com/meetsync/meetsync-api/pkg/config"
)

type participantScheduleStub struct {
	byUser map[string][]models.TimeBlock
}

func (s *participantScheduleStub) ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error) {
	return s.byUser[userID], nil
}

func newConflictHandler(schedules *participantScheduleStub, users *userRepoStub) *ConflictHandler {
	svc := service.NewConflictService(schedules, users, nil, nil, validator.New(), zap.NewNop(), config.ConflictConfig{
		CacheTTL:        time.Minute,
		MaxParticipants: 50,
	})
	return NewConflictHandler(svc)
}

func TestConflictHandlerCheck(t *testing.T) {
	users := &userRepoStub{byEmail: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	schedules := &participantScheduleStub{byUser: map[string][]models.TimeBlock{
		"u1": {{UserID: "u1", Date: "2026-09-01", StartHour: 14, EndHour: 15, Title: "Standup", Type: models.BlockEvent}},
	}}
	handler := newConflictHandler(schedules, users)
	c, w := postJSON(t, "/conflicts/check",
		`{"date":"2026-09-01","time":"14:00","participants":["alice@example.com"]}`)

	handler.Check(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"severity":"error"`)
	require.Contains(t, w.Body.String(), "Standup (14:00 - 15:00)")
}

func TestConflictHandlerCheckRejectsBadPayload(t *testing.T) {
	handler := newConflictHandler(&participantScheduleStub{}, &userRepoStub{})
	c, w := postJSON(t, "/conflicts/check", `{"date":"2026-09-01"}`)

	handler.Check(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
