package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meetsync/meetsync-api/internal/models"
)

const timeBlockColumns = "id, user_id, date, start_hour, end_hour, title, type, event_id, created_at, updated_at"

// ScheduleRepository is the schedule store: persistence for users'
// time blocks.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListByUser returns a user's full schedule in stable order.
func (r *ScheduleRepository) ListByUser(ctx context.Context, userID string) ([]models.TimeBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE user_id = $1 ORDER BY date ASC, start_hour ASC, created_at ASC`, timeBlockColumns)
	var blocks []models.TimeBlock
	if err := r.db.SelectContext(ctx, &blocks, query, userID); err != nil {
		return nil, fmt.Errorf("list schedule by user: %w", err)
	}
	return blocks, nil
}

// List returns time blocks matching the filter.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.TimeBlock, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}

	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	if filter.FromDate != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.ToDate)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}

	query := fmt.Sprintf("SELECT %s FROM schedules WHERE %s ORDER BY date ASC, start_hour ASC, created_at ASC",
		timeBlockColumns, strings.Join(conditions, " AND "))

	var blocks []models.TimeBlock
	if err := r.db.SelectContext(ctx, &blocks, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	return blocks, nil
}

// FindByID loads a time block by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.TimeBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE id = $1`, timeBlockColumns)
	var b models.TimeBlock
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create stores a new time block.
func (r *ScheduleRepository) Create(ctx context.Context, block *models.TimeBlock) error {
	prepareTimeBlock(block)
	const query = `INSERT INTO schedules (id, user_id, date, start_hour, end_hour, title, type, event_id, created_at, updated_at) VALUES (:id, :user_id, :date, :start_hour, :end_hour, :title, :type, :event_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, block); err != nil {
		return fmt.Errorf("create time block: %w", err)
	}
	return nil
}

// BulkCreate inserts many time blocks within a transaction. Used when a
// saved availability selection materialises several blocks at once.
func (r *ScheduleRepository) BulkCreate(ctx context.Context, blocks []models.TimeBlock) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create blocks: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range blocks {
		payload := blocks[i]
		prepareTimeBlock(&payload)
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO schedules (id, user_id, date, start_hour, end_hour, title, type, event_id, created_at, updated_at) VALUES (:id, :user_id, :date, :start_hour, :end_hour, :title, :type, :event_id, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("bulk insert time block: %w", err)
		}
		blocks[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create blocks: %w", err)
	}
	return nil
}

// Update modifies a time block.
func (r *ScheduleRepository) Update(ctx context.Context, block *models.TimeBlock) error {
	block.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET date = :date, start_hour = :start_hour, end_hour = :end_hour, title = :title, type = :type, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, block); err != nil {
		return fmt.Errorf("update time block: %w", err)
	}
	return nil
}

// Delete removes a time block by id.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete time block: %w", err)
	}
	return nil
}

// DeleteByEvent removes the derived block a user gained from an event,
// e.g. when an RSVP is changed away from yes.
func (r *ScheduleRepository) DeleteByEvent(ctx context.Context, eventID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE event_id = $1 AND user_id = $2`, eventID, userID); err != nil {
		return fmt.Errorf("delete derived block: %w", err)
	}
	return nil
}

func prepareTimeBlock(block *models.TimeBlock) {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.Title == "" {
		block.Title = block.Type.DefaultTitle()
	}
	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now
}
