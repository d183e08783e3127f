package store

import (
	"context"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type WithdrawStore struct {
	db DB
}

func NewWithdrawStore(db DB) *WithdrawStore {
	return &WithdrawStore{db: db}
}

type WithdrawView struct {
	models.Withdraw
	PhoneNumber string `db:"phone_number" json:"phone_number"`
}

func (s *WithdrawStore) Create(ctx context.Context, tx Getter, userID int64, amount decimal.Decimal, address, channel string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO withdraws (user_id, amount, wallet_address, channel, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id
	`, userID, amount, address, channel)
	return id, err
}

func (s *WithdrawStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Withdraw, error) {
	var withdraw models.Withdraw
	err := tx.GetContext(ctx, &withdraw, `
		SELECT id, user_id, amount, wallet_address, channel, status, created_at
		FROM withdraws
		WHERE id = $1
		FOR UPDATE
	`, id)
	return withdraw, err
}

func (s *WithdrawStore) Review(ctx context.Context, tx Execer, id int64, to models.ReviewStatus) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE withdraws SET status = $1 WHERE id = $2 AND status = 'pending'
	`, to, id))
}

// PendingTotal sums a user's withdrawals that are still awaiting review.
func (s *WithdrawStore) PendingTotal(ctx context.Context, tx Getter, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM withdraws WHERE user_id = $1 AND status = 'pending'
	`, userID)
	return total, err
}

func (s *WithdrawStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]WithdrawView, error) {
	rows := []WithdrawView{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.user_id, w.amount, w.wallet_address, w.channel, w.status, w.created_at, u.phone_number
		FROM withdraws w
		JOIN users u ON u.id = w.user_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

func (s *WithdrawStore) ListAll(ctx context.Context, status string, limit, offset int) ([]WithdrawView, error) {
	rows := []WithdrawView{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.user_id, w.amount, w.wallet_address, w.channel, w.status, w.created_at, u.phone_number
		FROM withdraws w
		JOIN users u ON u.id = w.user_id
		WHERE $1 = '' OR w.status = $1
		ORDER BY w.created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}
