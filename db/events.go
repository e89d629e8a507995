package db

import (
	"context"
	"encoding/json"
	"errors"

	"calendar/metrics"
	"calendar/models"

	"github.com/rs/zerolog"
)

// EventStore keeps one ordered event list per username.
type EventStore struct {
	docs Documents
	log  zerolog.Logger
}

func NewEventStore(docs Documents, logger zerolog.Logger) *EventStore {
	return &EventStore{docs: docs, log: logger}
}

// Load never fails: unreadable or malformed documents are logged and read as
// an empty list. Records lacking id, title or start are dropped, and a
// missing end defaults to start.
func (s *EventStore) Load(ctx context.Context, username string) []models.Event {
	key := EventsKey(username)
	data, err := s.docs.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return []models.Event{}
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("failed to read events")
		return []models.Event{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		metrics.CorruptDocuments.WithLabelValues("events").Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("malformed events document")
		return []models.Event{}
	}

	events := make([]models.Event, 0, len(raw))
	for _, item := range raw {
		var ev models.Event
		if err := json.Unmarshal(item, &ev); err != nil || ev == nil {
			continue
		}
		if !ev.Has(models.FieldID) || !ev.Has(models.FieldTitle) || !ev.Has(models.FieldStart) {
			continue
		}
		if !ev.Has(models.FieldEnd) {
			ev[models.FieldEnd] = ev[models.FieldStart]
		}
		events = append(events, ev)
	}
	return events
}

// Save replaces the user's document with the full list.
func (s *EventStore) Save(ctx context.Context, username string, events []models.Event) error {
	key := EventsKey(username)
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return &PersistenceError{Key: key, Err: err}
	}
	if err := s.docs.Write(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("failed to save events")
		return &PersistenceError{Key: key, Err: err}
	}
	return nil
}
