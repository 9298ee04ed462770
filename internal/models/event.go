package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RSVP captures a participant's answer to an event invitation.
type RSVP string

const (
	RSVPYes   RSVP = "yes"
	RSVPNo    RSVP = "no"
	RSVPMaybe RSVP = "maybe"
)

// ResponseMap stores per-participant RSVP answers as a jsonb column.
type ResponseMap map[string]RSVP

// Value implements driver.Valuer.
func (m ResponseMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ResponseMap) Scan(src interface{}) error {
	if src == nil {
		*m = ResponseMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported responses type %T", src)
	}
	if len(raw) == 0 {
		*m = ResponseMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Event is a proposed group commitment in the event directory. Until a
// participant accepts, it occupies nobody's schedule; acceptance derives an
// event-type TimeBlock for the responder.
type Event struct {
	ID                 string         `db:"id" json:"id"`
	Title              string         `db:"title" json:"title"`
	Description        string         `db:"description" json:"description"`
	Date               string         `db:"date" json:"date"`
	Time               string         `db:"time" json:"time"`
	Duration           int            `db:"duration" json:"duration"`
	CreatedBy          string         `db:"created_by" json:"created_by"`
	ParticipantsEmails pq.StringArray `db:"participants_emails" json:"participants_emails"`
	ParticipantsIDs    pq.StringArray `db:"participants_ids" json:"participants_ids"`
	AcceptedIDs        pq.StringArray `db:"accepted_ids" json:"accepted_ids"`
	Responses          ResponseMap    `db:"responses" json:"responses"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}
