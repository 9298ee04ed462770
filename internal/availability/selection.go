// Package availability implements the slot-selection policy used when a
// user edits their own availability grid: which occupied slots can still be
// selected, which need an explicit confirmation, and which are locked.
package availability

import (
	"sort"

	"github.com/meetsync/meetsync-api/internal/models"
)

// Slot identifies a single one-hour cell in the availability grid.
type Slot struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

// Decision is the outcome of classifying a slot against a schedule.
type Decision int

const (
	// Allow means the slot is free or only covered by advisory blocks.
	Allow Decision = iota
	// NeedsConfirm means an activity covers the slot; selection requires an
	// explicit confirmation step.
	NeedsConfirm
	// Blocked means a committed event covers the slot; it cannot be
	// selected at all.
	Blocked
)

// ClassifySlot inspects every block covering (date, hour). An event block
// wins over everything; an activity downgrades to confirmation; available
// blocks and empty slots are freely toggleable.
func ClassifySlot(schedule []models.TimeBlock, date string, hour int) Decision {
	decision := Allow
	for _, b := range schedule {
		if b.Date != date || hour < b.StartHour || hour >= b.EndHour {
			continue
		}
		switch b.Type {
		case models.BlockEvent:
			return Blocked
		case models.BlockActivity:
			decision = NeedsConfirm
		}
	}
	return decision
}

// Selection is a pending set of slots being toggled before saving. The
// zero value is not usable; construct with NewSelection.
type Selection struct {
	slots map[Slot]struct{}
}

// NewSelection returns an empty pending selection.
func NewSelection() *Selection {
	return &Selection{slots: make(map[Slot]struct{})}
}

// Toggle flips a slot in or out of the selection and reports whether the
// slot is selected afterwards. Toggling is idempotent per pair: selecting
// an absent slot adds it, toggling a present slot removes it.
func (s *Selection) Toggle(slot Slot) bool {
	if _, ok := s.slots[slot]; ok {
		delete(s.slots, slot)
		return false
	}
	s.slots[slot] = struct{}{}
	return true
}

// Contains reports whether the slot is currently selected.
func (s *Selection) Contains(slot Slot) bool {
	_, ok := s.slots[slot]
	return ok
}

// Len returns the number of selected slots.
func (s *Selection) Len() int {
	return len(s.slots)
}

// Slots returns the selection ordered by date then hour.
func (s *Selection) Slots() []Slot {
	out := make([]Slot, 0, len(s.slots))
	for slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// Blocks materialises every selected slot as a one-hour available block
// owned by userID. The selection itself is left untouched.
func (s *Selection) Blocks(userID string) []models.TimeBlock {
	slots := s.Slots()
	blocks := make([]models.TimeBlock, 0, len(slots))
	for _, slot := range slots {
		blocks = append(blocks, models.TimeBlock{
			UserID:    userID,
			Date:      slot.Date,
			StartHour: slot.Hour,
			EndHour:   slot.Hour + 1,
			Title:     models.BlockAvailable.DefaultTitle(),
			Type:      models.BlockAvailable,
		})
	}
	return blocks
}

// Clear empties the pending selection.
func (s *Selection) Clear() {
	s.slots = make(map[Slot]struct{})
}
