package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Credential is the stored login record of one user.
type Credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// UnmarshalJSON also accepts the older "password" key for the hash.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
		Password     string `json:"password"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Username = raw.Username
	c.PasswordHash = raw.PasswordHash
	if c.PasswordHash == "" {
		c.PasswordHash = raw.Password
	}
	return nil
}

// Well-known event fields. Anything else is carried through untouched.
const (
	FieldID    = "id"
	FieldTitle = "title"
	FieldStart = "start"
	FieldEnd   = "end"
)

// EventID is the canonical string form of an event id. Ids that look like
// integers are written back as JSON numbers, everything else as strings.
type EventID string

// IntID returns the id for a server assigned integer.
func IntID(n int64) EventID {
	return EventID(strconv.FormatInt(n, 10))
}

// Int reports the integer value of the id, if it has one.
func (id EventID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

func (id EventID) MarshalJSON() ([]byte, error) {
	if _, ok := id.Int(); ok {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *EventID) UnmarshalJSON(data []byte) error {
	parsed, _ := ParseEventID(data)
	*id = parsed
	return nil
}

// ParseEventID decodes a raw JSON id. The boolean is false when the id is
// missing or falsy (null, "", 0, false, empty array or object); such ids
// count as "not supplied".
func ParseEventID(raw json.RawMessage) (EventID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case 'n', 'f':
		return "", false
	case 't':
		return "true", true
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return EventID(s), true
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false
		}
		if buf.Len() == 2 {
			return "", false
		}
		return EventID(buf.String()), true
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f == 0 {
		return "", false
	}
	return EventID(raw), true
}

// Event is one calendar entry. It is kept as raw JSON fields so that
// whatever the client stored comes back byte for byte.
type Event map[string]json.RawMessage

// Has reports whether the field is present at all, null included.
func (e Event) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e Event) ID() (EventID, bool) {
	return ParseEventID(e[FieldID])
}

func (e Event) SetID(id EventID) {
	raw, _ := id.MarshalJSON()
	e[FieldID] = raw
}

func (e Event) Title() string { return e.str(FieldTitle) }
func (e Event) Start() string { return e.str(FieldStart) }
func (e Event) End() string   { return e.str(FieldEnd) }

func (e Event) str(field string) string {
	var s string
	if err := json.Unmarshal(e[field], &s); err != nil {
		return ""
	}
	return s
}

// Clone returns a shallow copy; the raw values are never mutated in place.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
