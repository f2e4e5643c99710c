package user

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a profile document does not exist. Callers
// distinguish it from transient failures to render a "not found" state
// instead of a loading state.
var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, p *Profile) error {
	query := `INSERT INTO users (id, username, password, display_name)
	          VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Username, p.Password, p.DisplayName)
	return err
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	p := &Profile{}
	query := `SELECT id, username, password, display_name, avatar_url,
	                 is_online, last_seen, created_at
	          FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&p.ID, &p.Username, &p.Password, &p.DisplayName, &p.AvatarURL,
		&p.IsOnline, &p.LastSeen, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByID is the durable-store point read used for partner profiles and
// the fallback presence source.
func (r *Repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	p := &Profile{}
	query := `SELECT id, username, display_name, avatar_url,
	                 is_online, last_seen, created_at
	          FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL,
		&p.IsOnline, &p.LastSeen, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]Profile, error) {
	// Limit to 10 to keep it fast
	q := `SELECT id, username, display_name, avatar_url
	      FROM users WHERE username ILIKE $1 OR display_name ILIKE $1
	      LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, p)
	}
	return users, rows.Err()
}

func (r *Repository) UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error {
	query := `UPDATE users SET display_name = $2, avatar_url = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, displayName, avatarURL)
	return err
}

// SetPresence updates the durable presence mirror. It is written on login,
// on the periodic heartbeat while a view is connected, and on graceful
// teardown; abrupt disconnects leave it stale until the next write, which
// is why the ephemeral store takes priority for display.
func (r *Repository) SetPresence(ctx context.Context, id string, online bool) error {
	query := `UPDATE users SET is_online = $2, last_seen = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, online)
	return err
}

func (r *Repository) TouchLogin(ctx context.Context, id string) error {
	query := `UPDATE users
	          SET last_login = CURRENT_TIMESTAMP,
	              is_online = TRUE,
	              last_seen = CURRENT_TIMESTAMP
	          WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
