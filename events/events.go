// Package events implements the per-user event collection operations on top
// of the event store. Every call is a full load, mutate and save cycle of the
// user's document.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"calendar/db"
	"calendar/metrics"
	"calendar/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidPayload = errors.New("no data provided")
	ErrEventNotFound  = errors.New("event not found")
	ErrMissingID      = errors.New("event id not provided")
	ErrInvalidID      = errors.New("invalid event id")
	ErrInvalidRange   = errors.New("invalid time range")
)

type Service struct {
	store  *db.EventStore
	locks  db.KeyedMutex
	logger zerolog.Logger
}

func NewService(store *db.EventStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// List returns the user's events in stored order. It never fails; an
// unreadable document lists as empty.
func (s *Service) List(ctx context.Context, username string) []models.Event {
	unlock := s.locks.Lock(username)
	defer unlock()

	events := s.store.Load(ctx, username)
	metrics.EventOperations.WithLabelValues("list", "success").Inc()
	return events
}

// Upsert replaces the event carrying the payload's id, or appends the
// payload under a fresh integer id when it has none. It returns the id the
// event is stored under.
func (s *Service) Upsert(ctx context.Context, username string, payload json.RawMessage) (models.EventID, error) {
	id, err := s.upsert(ctx, username, payload)
	metrics.EventOperations.WithLabelValues("upsert", result(err)).Inc()
	return id, err
}

func (s *Service) upsert(ctx context.Context, username string, payload json.RawMessage) (models.EventID, error) {
	ev, err := decodePayload(payload)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	events := s.store.Load(ctx, username)

	id, ok := ev.ID()
	if ok {
		i := indexOf(events, id)
		if i < 0 {
			s.logger.Warn().Str("username", username).Str("id", string(id)).Msg("update of unknown event")
			return "", ErrEventNotFound
		}
		events[i] = ev
	} else {
		id = nextID(events)
		ev.SetID(id)
		events = append(events, ev)
	}

	if err := s.store.Save(ctx, username, events); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes every event whose id is the same integer as rawID. A nil
// rawID means the request carried no id at all.
func (s *Service) Delete(ctx context.Context, username string, rawID json.RawMessage) error {
	err := s.delete(ctx, username, rawID)
	metrics.EventOperations.WithLabelValues("delete", result(err)).Inc()
	return err
}

func (s *Service) delete(ctx context.Context, username string, rawID json.RawMessage) error {
	if len(bytes.TrimSpace(rawID)) == 0 {
		return ErrMissingID
	}
	target, ok := coerceInt(rawID)
	if !ok {
		return ErrInvalidID
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	events := s.store.Load(ctx, username)
	kept := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if n, ok := coerceInt(ev[models.FieldID]); ok && n == target {
			continue
		}
		kept = append(kept, ev)
	}
	if len(kept) == len(events) {
		s.logger.Warn().Str("username", username).Int64("id", target).Msg("delete of non-existent event")
		return ErrEventNotFound
	}

	if err := s.store.Save(ctx, username, kept); err != nil {
		return err
	}
	s.logger.Info().Str("username", username).Int64("id", target).Msg("event deleted")
	return nil
}

func decodePayload(payload json.RawMessage) (models.Event, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, ErrInvalidPayload
	}
	var ev models.Event
	if err := json.Unmarshal(payload, &ev); err != nil || len(ev) == 0 {
		return nil, ErrInvalidPayload
	}
	return ev, nil
}

func indexOf(events []models.Event, id models.EventID) int {
	for i, ev := range events {
		if existing, ok := ev.ID(); ok && existing == id {
			return i
		}
	}
	return -1
}

// nextID is one more than the largest integer id, or 1 for a collection
// without any. When the largest id is math.MaxInt64 it falls back to the
// smallest unused positive id.
func nextID(events []models.Event) models.EventID {
	var highest int64
	used := make(map[int64]bool, len(events))
	for _, ev := range events {
		if n, ok := coerceInt(ev[models.FieldID]); ok {
			used[n] = true
			highest = max(highest, n)
		}
	}
	if highest < math.MaxInt64 {
		return models.IntID(highest + 1)
	}

	n := int64(1)
	for used[n] {
		n++
	}
	return models.IntID(n)
}

// coerceInt accepts a JSON integer, a JSON number with an integral value
// such as 1.0, or a string holding an integer.
func coerceInt(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	}

	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrMissingID), errors.Is(err, ErrInvalidID):
		return "rejected"
	default:
		return "error"
	}
}
