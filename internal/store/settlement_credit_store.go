package store

import (
	"context"
	"time"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type SettlementCreditStore struct {
	db DB
}

func NewSettlementCreditStore(db DB) *SettlementCreditStore {
	return &SettlementCreditStore{db: db}
}

type CreditInput struct {
	UserID   int64
	Unfreeze decimal.Decimal
	Profit   decimal.Decimal
}

// StalledStock is a settled stock whose credits have not all reached the
// users' balances.
type StalledStock struct {
	StockID       int64     `db:"stock_id" json:"stock_id"`
	PendingUsers  int       `db:"pending_users" json:"pending_users"`
	OldestCredit  time.Time `db:"oldest_credit" json:"oldest_credit"`
	LastError     *string   `db:"last_error" json:"last_error,omitempty"`
	TotalAttempts int       `db:"total_attempts" json:"total_attempts"`
}

const creditColumns = `id, stock_id, user_id, unfreeze, profit, applied_at, attempts, last_error, created_at`

func (s *SettlementCreditStore) Insert(ctx context.Context, tx Execer, stockID int64, input CreditInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_credits (stock_id, user_id, unfreeze, profit)
		VALUES ($1, $2, $3, $4)
	`, stockID, input.UserID, input.Unfreeze, input.Profit)
	return err
}

func (s *SettlementCreditStore) ListUnapplied(ctx context.Context, stockID int64) ([]models.SettlementCredit, error) {
	credits := []models.SettlementCredit{}
	err := s.db.SelectContext(ctx, &credits, `
		SELECT `+creditColumns+`
		FROM settlement_credits
		WHERE stock_id = $1 AND applied_at IS NULL
		ORDER BY user_id
	`, stockID)
	return credits, err
}

func (s *SettlementCreditStore) ListByStock(ctx context.Context, stockID int64) ([]models.SettlementCredit, error) {
	credits := []models.SettlementCredit{}
	err := s.db.SelectContext(ctx, &credits, `
		SELECT `+creditColumns+`
		FROM settlement_credits
		WHERE stock_id = $1
		ORDER BY user_id
	`, stockID)
	return credits, err
}

// GetUnapplied reads one user's pending credit inside the applying transaction.
func (s *SettlementCreditStore) GetUnapplied(ctx context.Context, tx Getter, stockID, userID int64) (models.SettlementCredit, error) {
	var credit models.SettlementCredit
	err := tx.GetContext(ctx, &credit, `
		SELECT `+creditColumns+`
		FROM settlement_credits
		WHERE stock_id = $1 AND user_id = $2 AND applied_at IS NULL
	`, stockID, userID)
	return credit, err
}

// MarkApplied flips applied_at exactly once; zero rows means a concurrent
// resume already applied it.
func (s *SettlementCreditStore) MarkApplied(ctx context.Context, tx Execer, id int64) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE settlement_credits
		SET applied_at = NOW(), attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND applied_at IS NULL
	`, id))
}

func (s *SettlementCreditStore) RecordFailure(ctx context.Context, stockID, userID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_credits
		SET attempts = attempts + 1, last_error = $1
		WHERE stock_id = $2 AND user_id = $3 AND applied_at IS NULL
	`, message, stockID, userID)
	return err
}

func (s *SettlementCreditStore) ListStalled(ctx context.Context, olderThan time.Time) ([]StalledStock, error) {
	rows := []StalledStock{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT stock_id,
		       COUNT(1) AS pending_users,
		       MIN(created_at) AS oldest_credit,
		       MAX(last_error) AS last_error,
		       SUM(attempts) AS total_attempts
		FROM settlement_credits
		WHERE applied_at IS NULL AND created_at < $1
		GROUP BY stock_id
		ORDER BY stock_id
	`, olderThan)
	return rows, err
}
