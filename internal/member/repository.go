package member

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("member not found")
	ErrInvalidStatus = errors.New("invalid status")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, user_id, name, email, password_hash, role, avatar, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	m := &Member{}
	var userID sql.NullString
	if err := row.Scan(&m.ID, &userID, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Avatar, &m.Status); err != nil {
		return nil, err
	}
	m.UserID = userID.String
	return m, nil
}

func (r *Repository) CreateMember(ctx context.Context, m *Member) (*Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Role == "" {
		m.Role = RoleAssistant
	}
	if m.Status == "" {
		m.Status = StatusOffline
	}
	var userID any
	if m.UserID != "" {
		userID = m.UserID
	}

	query := `INSERT INTO team_members (id, user_id, name, email, password_hash, role, avatar, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, m.ID, userID, m.Name, m.Email, m.PasswordHash, m.Role, m.Avatar, m.Status)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Member, error) {
	query := "SELECT " + memberColumns + " FROM team_members WHERE email = $1"
	m, err := scanMember(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Member, error) {
	query := "SELECT " + memberColumns + " FROM team_members WHERE id = $1"
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetByUserID resolves the member linked to an external auth identity.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*Member, error) {
	query := "SELECT " + memberColumns + " FROM team_members WHERE user_id = $1"
	m, err := scanMember(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *Repository) ListMembers(ctx context.Context) ([]Member, error) {
	return r.query(ctx, "SELECT "+memberColumns+" FROM team_members ORDER BY name")
}

func (r *Repository) SearchMembers(ctx context.Context, query string) ([]Member, error) {
	// We limit to 10 to keep it fast
	q := "SELECT " + memberColumns + " FROM team_members WHERE name ILIKE $1 ORDER BY name LIMIT 10"
	return r.query(ctx, q, "%"+query+"%")
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	res, err := r.db.ExecContext(ctx, "UPDATE team_members SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, id, name, avatar string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE team_members SET name = $1, avatar = $2 WHERE id = $3", name, avatar, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
