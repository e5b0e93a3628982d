package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"batchtrack/internal/domain"
)

// UserStore manages the legacy users table.
type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, username, password FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, username, password FROM users WHERE username = $1`, username)
}

// Create stores a new user with a bcrypt hash of password.
func (s *UserStore) Create(ctx context.Context, username, password string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{Username: username, Password: string(hash)}
	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`,
		user.Username, user.Password,
	).Scan(&user.ID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(user *domain.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
