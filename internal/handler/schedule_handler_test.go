package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetsync/meetsync-api/internal/middleware"
	"github.com/meetsync/meetsync-api/internal/models"
	"github.com/meetsync/meetsync-api/internal/service"
)

type scheduleRepoStub struct {
	blocks []models.TimeBlock
	bulk   []models.TimeBlock
}

func (s *scheduleRepoStub) ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error) {
	return s.blocks, nil
}

func (s *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.TimeBlock, error) {
	return s.blocks, nil
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.TimeBlock, error) {
	return nil, sql.ErrNoRows
}

func (s *scheduleRepoStub) Create(ctx context.Context, block *models.TimeBlock) error {
	block.ID = "b1"
	s.blocks = append(s.blocks, *block)
	return nil
}

func (s *scheduleRepoStub) BulkCreate(ctx context.Context, blocks []models.TimeBlock) error {
	s.bulk = append(s.bulk, blocks...)
	return nil
}

func (s *scheduleRepoStub) Update(ctx context.Context, block *models.TimeBlock) error { return nil }

func (s *scheduleRepoStub) Delete(ctx context.Context, id string) error { return nil }

func (s *scheduleRepoStub) DeleteByEvent(ctx context.Context, eventID, userID string) error {
	return nil
}

func newScheduleTestContext(t *testing.T, method, target, body string, authed bool) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if authed {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Email: "user@example.com"})
	}
	return c, w
}

func newScheduleHandler(repo *scheduleRepoStub) *ScheduleHandler {
	svc := service.NewScheduleService(repo, nil, validator.New(), zap.NewNop())
	return NewScheduleHandler(svc)
}

func TestScheduleHandlerListRequiresAuth(t *testing.T) {
	handler := newScheduleHandler(&scheduleRepoStub{})
	c, w := newScheduleTestContext(t, http.MethodGet, "/schedules", "", false)

	handler.List(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScheduleHandlerCreate(t *testing.T) {
	repo := &scheduleRepoStub{}
	handler := newScheduleHandler(repo)
	c, w := newScheduleTestContext(t, http.MethodPost, "/schedules",
		`{"date":"2026-09-01","start_hour":9,"end_hour":11,"title":"Focus"}`, true)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.blocks, 1)
	require.Equal(t, models.BlockBusy, repo.blocks[0].Type)
}

func TestScheduleHandlerCreateRejectsBadJSON(t *testing.T) {
	handler := newScheduleHandler(&scheduleRepoStub{})
	c, w := newScheduleTestContext(t, http.MethodPost, "/schedules", `{`, true)

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerSaveSelectionBlockedSlot(t *testing.T) {
	repo := &scheduleRepoStub{blocks: []models.TimeBlock{
		{UserID: "u1", Date: "2026-09-01", StartHour: 14, EndHour: 15, Type: models.BlockEvent},
	}}
	handler := newScheduleHandler(repo)
	c, w := newScheduleTestContext(t, http.MethodPost, "/schedules/selection",
		`{"slots":[{"date":"2026-09-01","hour":14}]}`, true)

	handler.SaveSelection(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Empty(t, repo.bulk)
}

func TestScheduleHandlerSaveSelectionActivityNeedsConfirm(t *testing.T) {
	repo := &scheduleRepoStub{blocks: []models.TimeBlock{
		{UserID: "u1", Date: "2026-09-01", StartHour: 14, EndHour: 16, Type: models.BlockActivity},
	}}
	handler := newScheduleHandler(repo)
	c, w := newScheduleTestContext(t, http.MethodPost, "/schedules/selection",
		`{"slots":[{"date":"2026-09-01","hour":15}]}`, true)

	handler.SaveSelection(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestScheduleHandlerExportCSV(t *testing.T) {
	repo := &scheduleRepoStub{blocks: []models.TimeBlock{
		{UserID: "u1", Date: "2026-09-01", StartHour: 9, EndHour: 10, Title: "Standup", Type: models.BlockEvent},
	}}
	handler := newScheduleHandler(repo)
	c, w := newScheduleTestContext(t, http.MethodGet, "/schedules/export?format=csv", "", true)

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "Standup")
}
