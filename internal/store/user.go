package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

// UserStore handles user lookups (API key → user).
type UserStore struct {
	Pool *dbpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *dbpool.Pool) *UserStore {
	return &UserStore{Pool: pool}
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))

	return hex.EncodeToString(hash[:])
}

// CreateUser inserts a user owning apiKey. Only the key hash is stored.
func (s *UserStore) CreateUser(ctx context.Context, email, name, apiKey string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var u models.User

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO users (email, name, api_key_hash) VALUES ($1, $2, $3)
		 RETURNING id, email, name, created_at`,
		email, name, HashAPIKey(apiKey),
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, wrapUnique(err, "inserting user")
	}

	return &u, nil
}

// GetUserByAPIKey looks up a user by API key hash.
func (s *UserStore) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var u models.User

	err := s.Pool.QueryRow(ctx,
		"SELECT id, email, name, created_at FROM users WHERE api_key_hash = $1", HashAPIKey(apiKey),
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}

		return nil, fmt.Errorf("looking up user by API key: %w", err)
	}

	return &u, nil
}
