package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"calendar/metrics"
	"calendar/models"
)

// UserStore maps usernames to credential records inside one document.
type UserStore struct {
	docs Documents
}

func NewUserStore(docs Documents) *UserStore {
	return &UserStore{docs: docs}
}

// Load returns every credential record. A missing document is an empty set;
// an undecodable one is a *CorruptDataError and is left untouched on disk.
func (s *UserStore) Load(ctx context.Context) (map[string]models.Credential, error) {
	data, err := s.docs.Read(ctx, UsersKey)
	if errors.Is(err, ErrNotFound) {
		return make(map[string]models.Credential), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	var users map[string]models.Credential
	if err := json.Unmarshal(data, &users); err != nil {
		metrics.CorruptDocuments.WithLabelValues("users").Inc()
		return nil, &CorruptDataError{Key: UsersKey, Err: err}
	}
	if users == nil {
		users = make(map[string]models.Credential)
	}
	return users, nil
}

func (s *UserStore) Save(ctx context.Context, users map[string]models.Credential) error {
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return &PersistenceError{Key: UsersKey, Err: err}
	}
	if err := s.docs.Write(ctx, UsersKey, data); err != nil {
		return &PersistenceError{Key: UsersKey, Err: err}
	}
	return nil
}
