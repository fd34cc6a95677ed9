package models

import "time"

// Action types that can be reversed by the undo handler.
const (
	ActionNavigate   = "navigate"
	ActionClick      = "click"
	ActionScroll     = "scroll"
	ActionFormSubmit = "form_submit"
)

// DefaultHistoryCapacity bounds the undo ring buffer.
const DefaultHistoryCapacity = 10

// ScrollPosition is a page scroll offset in CSS pixels.
type ScrollPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ActionRecord captures one reversible side effect together with the page
// state needed to reverse it. Records are immutable once pushed.
type ActionRecord struct {
	Type         string         `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	ScrollBefore ScrollPosition `json:"scroll_before"`
	URLBefore    string         `json:"url_before"`
}

// ActionHistory is a bounded ring of executed undoable actions, most recent
// first. It is owned by a single session goroutine and is not safe for
// concurrent use.
type ActionHistory struct {
	entries  []ActionRecord
	capacity int
}

// NewActionHistory creates a history bounded to capacity entries. A
// non-positive capacity falls back to DefaultHistoryCapacity.
func NewActionHistory(capacity int) *ActionHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &ActionHistory{capacity: capacity}
}

// Push records a new action as the most recent entry, evicting the oldest
// entry when the ring is full.
func (h *ActionHistory) Push(rec ActionRecord) {
	h.entries = append(h.entries, rec)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
	}
}

// Pop removes and returns the most recent entry.
func (h *ActionHistory) Pop() (ActionRecord, bool) {
	if len(h.entries) == 0 {
		return ActionRecord{}, false
	}
	rec := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return rec, true
}

// Len returns the number of recorded entries.
func (h *ActionHistory) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the history, most recent first.
func (h *ActionHistory) Entries() []ActionRecord {
	out := make([]ActionRecord, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		out = append(out, h.entries[i])
	}
	return out
}
