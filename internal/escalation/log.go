// Package escalation implements the human-handoff machinery: the
// append-only escalation log and the trigger-phrase gate the
// orchestrator consults on every inbound message.
package escalation

import (
	"sort"
	"sync"
	"time"

	"github.com/chatclerk/chatclerk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Log is the in-memory escalation record log. Append-only: records are
// never mutated or removed, so a plain slice under a mutex suffices.
type Log struct {
	mu      sync.Mutex
	records []models.EscalationRecord
	now     func() time.Time
}

// NewLog creates an empty escalation log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// NewLogWithClock creates a log with an explicit time source. Tests only.
func NewLogWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Append records one escalation event, assigning id and timestamp if
// unset, and returns the stored record.
func (l *Log) Append(rec models.EscalationRecord) models.EscalationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	l.records = append(l.records, rec)

	log.Info().
		Str("conversation", rec.ConversationID).
		Str("reason", rec.Reason).
		Msg("Escalation recorded")
	return rec
}

// List returns records newest first, optionally filtered by conversation
// id, capped at limit. limit <= 0 means no cap.
func (l *Log) List(conversationID string, limit int) []models.EscalationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.EscalationRecord, 0, len(l.records))
	for _, r := range l.records {
		if conversationID != "" && r.ConversationID != conversationID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Count returns the total number of records.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
