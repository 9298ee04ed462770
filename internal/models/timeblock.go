package models

import "time"

// BlockType tags a time block and drives conflict policy: committed events
// block outright, activities warn, availability and busy markers are
// advisory.
type BlockType string

const (
	BlockAvailable BlockType = "available"
	BlockBusy      BlockType = "busy"
	BlockEvent     BlockType = "event"
	BlockActivity  BlockType = "activity"
)

// DefaultTitle returns the display label used when a block has no title.
func (t BlockType) DefaultTitle() string {
	switch t {
	case BlockAvailable:
		return "Available"
	case BlockEvent:
		return "Event"
	case BlockActivity:
		return "Activity"
	default:
		return "Busy"
	}
}

// TimeBlock is an hour-granular, half-open interval [start_hour, end_hour)
// on a single calendar date, owned by one user's schedule. Dates carry no
// time zone; the whole model works at hour granularity.
type TimeBlock struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Date      string    `db:"date" json:"date"`
	StartHour int       `db:"start_hour" json:"start_hour"`
	EndHour   int       `db:"end_hour" json:"end_hour"`
	Title     string    `db:"title" json:"title"`
	Type      BlockType `db:"type" json:"type"`
	EventID   *string   `db:"event_id" json:"event_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter narrows a schedule listing.
type ScheduleFilter struct {
	UserID   string
	Date     string
	FromDate string
	ToDate   string
	Type     BlockType
}
