package database

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vicr123/entertaining-server/internal/auth"
	"github.com/vicr123/entertaining-server/internal/models"
	"golang.org/x/crypto/blake2b"
)

// Store answers identity and friend-graph queries for the gateway.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// HashToken is the form tokens are stored in.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PictureFor returns the gravatar url for an email address.
func PictureFor(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:])
}

// ResolveToken implements auth.Resolver for opaque database tokens.
func (s *Store) ResolveToken(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, auth.ErrInvalidToken
	}

	q := `
		SELECT u.id, u.username, u.email
		FROM users u
		JOIN tokens t ON t.user_id = u.id
		WHERE t.token_hash = $1
	`
	var u models.User
	err := s.pool.QueryRow(ctx, q, HashToken(token)).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Identity{}, auth.ErrInvalidToken
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to look up token: %w", err)
	}

	return models.Identity{UserID: u.ID, Username: u.Username, Picture: PictureFor(u.Email)}, nil
}

// FriendsForUser lists the other side of every friendship userID is part of.
func (s *Store) FriendsForUser(ctx context.Context, userID int64) ([]models.Friend, error) {
	q := `
		SELECT u.id, u.username
		FROM friends f
		JOIN users u ON u.id = CASE WHEN f.first_user = $1 THEN f.second_user ELSE f.first_user END
		WHERE f.first_user = $1 OR f.second_user = $1
		ORDER BY u.username
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var fs []models.Friend
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.UserID, &f.Username); err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, rows.Err()
}

// HasPendingFriendRequests reports whether anyone is waiting on userID to answer a request.
func (s *Store) HasPendingFriendRequests(ctx context.Context, userID int64) (bool, error) {
	var pending bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM friend_requests WHERE target = $1)`, userID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("failed to check friend requests: %w", err)
	}
	return pending, nil
}

// CreateUser inserts a user and returns its id. Only used to seed accounts; account
// management lives in another service.
func (s *Store) CreateUser(ctx context.Context, username, email string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id`,
		username, email,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// AddToken stores the hash of token for userID.
func (s *Store) AddToken(ctx context.Context, userID int64, token string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tokens (user_id, token_hash) VALUES ($1, $2)`, userID, HashToken(token))
	return err
}

// AddFriendship records a friendship, always with the smaller id first.
func (s *Store) AddFriendship(ctx context.Context, a, b int64) error {
	if a > b {
		a, b = b, a
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM friend_requests WHERE (requester=$1 AND target=$2) OR (requester=$2 AND target=$1)`, a, b); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO friends (first_user, second_user) VALUES ($1, $2) ON CONFLICT DO NOTHING`, a, b)
		return err
	})
}

// AddFriendRequest records a pending request from requester to target.
func (s *Store) AddFriendRequest(ctx context.Context, requester, target int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO friend_requests (requester, target) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		requester, target,
	)
	return err
}
