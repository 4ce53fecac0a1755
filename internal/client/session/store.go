package session

import (
	"context"
	"database/sql"
	"errors"

	"github.com/exmate/exmate/internal/client/repositories/metadata"
	"github.com/exmate/exmate/internal/dbx"
)

const (
	KeyToken = "session.token"
	KeyUser  = "session.user"
)

// Store persists the session pair. Replace purges every persisted key,
// not only the pair, before writing.
type Store interface {
	Load(ctx context.Context) (token string, user []byte, err error)
	Replace(ctx context.Context, token string, user []byte) error
	SaveUser(ctx context.Context, user []byte) error
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the pair in the metadata table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) repo() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

func (s *SQLiteStore) Load(ctx context.Context) (string, []byte, error) {
	repo := s.repo()
	token, err := repo.Get(ctx, KeyToken)
	if err != nil {
		return "", nil, err
	}
	user, err := repo.Get(ctx, KeyUser)
	if err != nil {
		return "", nil, err
	}
	return string(token), user, nil
}

// Replace wipes the store and writes the new pair in one transaction, so a
// crash never leaves the previous account's data next to the new token.
func (s *SQLiteStore) Replace(ctx context.Context, token string, user []byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if err := repo.Set(ctx, KeyToken, []byte(token)); err != nil {
			return err
		}
		return repo.Set(ctx, KeyUser, user)
	})
}

// SaveUser rewrites the profile half of an existing pair. Without a stored
// token there is no pair to update.
func (s *SQLiteStore) SaveUser(ctx context.Context, user []byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		token, err := repo.Get(ctx, KeyToken)
		if err != nil {
			return err
		}
		if len(token) == 0 {
			return errNoStoredToken
		}
		return repo.Set(ctx, KeyUser, user)
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.repo().Clear(ctx)
}

var errNoStoredToken = errors.New("no stored token")
