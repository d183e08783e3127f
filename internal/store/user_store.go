package store

import (
	"context"
	"database/sql"
	"errors"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

type NewUser struct {
	PhoneNumber  string
	PasswordHash string
	ReferralCode string
	InvitedBy    *int64
}

const userColumns = `id, phone_number, password_hash, balance, available_balance, wallet_address, referral_code, invited_by, created_at`

func (s *UserStore) Create(ctx context.Context, tx Getter, input NewUser) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO users (phone_number, password_hash, referral_code, invited_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, input.PhoneNumber, input.PasswordHash, input.ReferralCode, input.InvitedBy)
	return id, err
}

func (s *UserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return user, err
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
	return user, err
}

// IDByReferralCode resolves an invitation code; codes are stored upper-case.
func (s *UserStore) IDByReferralCode(ctx context.Context, code string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT id FROM users WHERE referral_code = $1`, code)
	return id, err
}

func (s *UserStore) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`, code)
	return exists, err
}

func (s *UserStore) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID)
	return exists, err
}

// GetBalances reads the optimistic-lock snapshot of a user's funds. Pass a
// transaction to read inside it.
func (s *UserStore) GetBalances(ctx context.Context, q Getter, userID int64) (models.Balances, error) {
	if q == nil {
		q = s.db
	}
	var balances models.Balances
	err := q.GetContext(ctx, &balances, `
		SELECT balance, available_balance
		FROM users
		WHERE id = $1
	`, userID)
	return balances, err
}

// CompareAndSwapBalances writes next only if the row still holds prev.
// It reports false when another writer got there first.
func (s *UserStore) CompareAndSwapBalances(ctx context.Context, tx Execer, userID int64, prev, next models.Balances) (bool, error) {
	rows, err := rowsAffected(tx.ExecContext(ctx, `
		UPDATE users
		SET balance = $1, available_balance = $2, updated_at = NOW()
		WHERE id = $3 AND balance = $4 AND available_balance = $5
	`, next.Balance, next.Available, userID, prev.Balance, prev.Available))
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *UserStore) IncrementBalance(ctx context.Context, tx Execer, userID int64, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `SELECT increment_balance($1, $2)`, userID, amount)
	return err
}

// DecrementBalance reports false when the user cannot cover amount.
func (s *UserStore) DecrementBalance(ctx context.Context, tx Getter, userID int64, amount decimal.Decimal) (bool, error) {
	var ok bool
	err := tx.GetContext(ctx, &ok, `SELECT decrement_balance($1, $2)`, userID, amount)
	return ok, err
}

func (s *UserStore) SetWalletAddress(ctx context.Context, userID int64, address string) error {
	rows, err := rowsAffected(s.db.ExecContext(ctx, `
		UPDATE users SET wallet_address = $1, updated_at = NOW() WHERE id = $2
	`, address, userID))
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type UserSummary struct {
	models.User
	InviteCount int  `db:"invite_count" json:"invite_count"`
	IsAdmin     bool `db:"is_admin" json:"is_admin"`
}

func (s *UserStore) List(ctx context.Context, search string, limit, offset int) ([]UserSummary, error) {
	rows := []UserSummary{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.id, u.phone_number, u.password_hash, u.balance, u.available_balance, u.wallet_address,
		       u.referral_code, u.invited_by, u.created_at,
		       (SELECT COUNT(1) FROM users c WHERE c.invited_by = u.id) AS invite_count,
		       EXISTS (SELECT 1 FROM admins a WHERE a.user_id = u.id) AS is_admin
		FROM users u
		WHERE $1 = '' OR u.phone_number LIKE '%' || $1 || '%'
		ORDER BY u.id DESC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	return rows, err
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
