package store

import (
	"context"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

type adminFlags struct {
	IsAdmin bool `db:"is_admin"`
	IsSuper bool `db:"is_super"`
}

// IsAdmin reports whether the user is an admin and, if so, a super admin.
func (s *AdminStore) IsAdmin(ctx context.Context, userID int64) (bool, bool, error) {
	var flags adminFlags
	err := s.db.GetContext(ctx, &flags, `
		SELECT COUNT(1) > 0 AS is_admin, COALESCE(BOOL_OR(is_super), FALSE) AS is_super
		FROM admins
		WHERE user_id = $1
	`, userID)
	return flags.IsAdmin, flags.IsSuper, err
}

func (s *AdminStore) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	var granted bool
	err := s.db.GetContext(ctx, &granted, `
		SELECT EXISTS (SELECT 1 FROM admin_roles WHERE admin_user_id = $1 AND role = $2)
	`, userID, role)
	return granted, err
}

func (s *AdminStore) Roles(ctx context.Context, userID int64) ([]string, error) {
	roles := []string{}
	err := s.db.SelectContext(ctx, &roles, `
		SELECT role FROM admin_roles WHERE admin_user_id = $1 ORDER BY role
	`, userID)
	return roles, err
}

// CreateAdmin fails with a unique violation when the user already is one.
func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID int64, isSuper bool, createdBy *int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, $2, $3)
	`, userID, isSuper, createdBy)
	return err
}

// GrantRole is idempotent.
func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID int64, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (admin_user_id, role) DO NOTHING
	`, adminUserID, role)
	return err
}

// HasAnyAdmin is false only before the first registration bootstraps a super admin.
func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM admins)`)
	return exists, err
}
