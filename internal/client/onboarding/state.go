package onboarding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/repositories/metadata"
	"github.com/exmate/exmate/internal/dbx"
	"github.com/exmate/exmate/internal/logging"
)

// Persisted onboarding keys. They share a prefix distinct from the session
// pair, so an unfinished flow never looks like a session.
const (
	keyPrefix   = "onboarding."
	KeyToken    = keyPrefix + "token"
	KeyUser     = keyPrefix + "user"
	KeyProgress = keyPrefix + "progress"
)

// StateStore persists OnboardingState across restarts.
type StateStore struct {
	db  *sql.DB
	log logging.Logger
}

func NewStateStore(db *sql.DB, log logging.Logger) *StateStore {
	return &StateStore{db: db, log: log.With("component", "onboarding-store")}
}

type progress struct {
	Step  models.Step           `json:"step"`
	Steps []models.Step         `json:"steps"`
	Form  models.OnboardingForm `json:"form"`
}

func (s *StateStore) Save(ctx context.Context, st *models.OnboardingState) error {
	rawUser, err := models.EncodeUser(st.PendingUser)
	if err != nil {
		return fmt.Errorf("encode pending user: %w", err)
	}
	rawProgress, err := json.Marshal(progress{Step: st.Step, Steps: st.Steps, Form: st.Form})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, KeyToken, []byte(st.PendingToken)); err != nil {
			return err
		}
		if err := repo.Set(ctx, KeyUser, []byte(rawUser)); err != nil {
			return err
		}
		return repo.Set(ctx, KeyProgress, rawProgress)
	})
}

// Load returns the persisted state, or nil when there is no pending token
// or the pending user cannot be read back.
func (s *StateStore) Load(ctx context.Context) (*models.OnboardingState, error) {
	repo := metadata.NewSQLiteRepository(s.db)

	token, err := repo.Get(ctx, KeyToken)
	if err != nil {
		return nil, err
	}
	if len(token) == 0 {
		return nil, nil
	}
	rawUser, err := repo.Get(ctx, KeyUser)
	if err != nil {
		return nil, err
	}
	res := models.DecodeUser(string(rawUser))
	if !res.OK() {
		s.log.Warn(ctx, "discarding onboarding state with unreadable user", "error", res.Err)
		return nil, nil
	}

	st := &models.OnboardingState{PendingToken: string(token), PendingUser: res.User}
	rawProgress, err := repo.Get(ctx, KeyProgress)
	if err != nil {
		return nil, err
	}
	if len(rawProgress) > 0 {
		var p progress
		if err := json.Unmarshal(rawProgress, &p); err != nil {
			s.log.Warn(ctx, "ignoring unreadable onboarding progress", "error", err)
		} else {
			st.Step, st.Steps, st.Form = p.Step, p.Steps, p.Form
		}
	}
	return st, nil
}

func (s *StateStore) Clear(ctx context.Context) error {
	return metadata.NewSQLiteRepository(s.db).DeletePrefix(ctx, keyPrefix)
}
