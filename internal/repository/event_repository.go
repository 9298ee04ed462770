package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meetsync/meetsync-api/internal/models"
)

const eventColumns = "id, title, description, date, time, duration, created_by, participants_emails, participants_ids, accepted_ids, responses, created_at, updated_at"

// EventRepository is the event directory: persistence for proposed group
// events and their RSVP state.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create stores a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Responses == nil {
		event.Responses = models.ResponseMap{}
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, title, description, date, time, duration, created_by, participants_emails, participants_ids, accepted_ids, responses, created_at, updated_at) VALUES (:id, :title, :description, :date, :time, :duration, :created_by, :participants_emails, :participants_ids, :accepted_ids, :responses, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID loads an event by id.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListForParticipant returns events the user created or is invited to,
// whether the invitation referenced their id or their email.
func (r *EventRepository) ListForParticipant(ctx context.Context, userID, email string) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE created_by = $1 OR $1 = ANY(participants_ids) OR $2 = ANY(participants_emails) ORDER BY date ASC, time ASC, created_at ASC`, eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, userID, email); err != nil {
		return nil, fmt.Errorf("list events for participant: %w", err)
	}
	return events, nil
}

// UpdateResponses persists RSVP state for an event.
func (r *EventRepository) UpdateResponses(ctx context.Context, id string, responses models.ResponseMap, acceptedIDs pq.StringArray) error {
	const query = `UPDATE events SET responses = $2, accepted_ids = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, responses, acceptedIDs, time.Now().UTC()); err != nil {
		return fmt.Errorf("update event responses: %w", err)
	}
	return nil
}
