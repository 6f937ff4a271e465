package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// UserStore is the durable side of the user registry. The registry holds the
// authoritative in-memory copy; every mutation goes through Upsert as a
// single keyed write before it is committed in memory.
type UserStore interface {
	LoadAll(ctx context.Context) ([]*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
}

// PostgresUserStore persists users as one row per pseudo.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `pseudo, password_digest, joined_at, age, sex, avatar, status, banned, friends, requests, blocked, unread, settings`

// LoadAll reads every user row. Called once at startup to warm the registry.
func (s *PostgresUserStore) LoadAll(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Upsert writes a single user row keyed by pseudo. INSERT ... ON CONFLICT
// keeps the write a one-record transaction; the whole collection is never
// rewritten.
func (s *PostgresUserStore) Upsert(ctx context.Context, u *models.User) error {
	unread, err := json.Marshal(u.Unread)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (pseudo) DO UPDATE SET
			password_digest = EXCLUDED.password_digest,
			age = EXCLUDED.age,
			sex = EXCLUDED.sex,
			avatar = EXCLUDED.avatar,
			status = EXCLUDED.status,
			banned = EXCLUDED.banned,
			friends = EXCLUDED.friends,
			requests = EXCLUDED.requests,
			blocked = EXCLUDED.blocked,
			unread = EXCLUDED.unread,
			settings = EXCLUDED.settings
	`, u.Pseudo, u.PasswordDigest, u.JoinedAt, u.Age, u.Sex, u.Avatar, u.Status, u.Banned,
		pq.Array(u.Friends), pq.Array(u.Requests), pq.Array(u.Blocked), unread, settings)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", u.Pseudo, err)
	}
	return nil
}

func scanUser(rows *sql.Rows) (*models.User, error) {
	var u models.User
	var friends, requests, blocked pq.StringArray
	var unread, settings []byte

	if err := rows.Scan(&u.Pseudo, &u.PasswordDigest, &u.JoinedAt, &u.Age, &u.Sex,
		&u.Avatar, &u.Status, &u.Banned, &friends, &requests, &blocked, &unread, &settings); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Friends = friends
	u.Requests = requests
	u.Blocked = blocked
	if len(unread) > 0 {
		if err := json.Unmarshal(unread, &u.Unread); err != nil {
			return nil, fmt.Errorf("decode unread for %q: %w", u.Pseudo, err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &u.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %q: %w", u.Pseudo, err)
		}
	}
	return &u, nil
}
