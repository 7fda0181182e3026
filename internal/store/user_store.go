package store

import (
	"context"

	"bankledger/internal/models"
)

type UserStore struct {
	db DB
}

const userColumns = `id, username, email, full_name, password_hash, created_at`

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.FullName, user.PasswordHash, user.CreatedAt)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg string) (models.User, error) {
	var row models.User
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		return models.User{}, err
	}
	return row, nil
}
