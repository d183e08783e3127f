package store

import (
	"context"

	"copytrade/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CopyTradeStore struct {
	db DB
}

func NewCopyTradeStore(db DB) *CopyTradeStore {
	return &CopyTradeStore{db: db}
}

type NewBinding struct {
	UserID           int64
	MentorID         int64
	Amount           decimal.Decimal
	MentorCommission decimal.Decimal
}

// BindingView is a binding joined with what the order screens display.
type BindingView struct {
	models.CopyTradeBinding
	MentorName  string              `db:"mentor_name" json:"mentor_name"`
	PhoneNumber string              `db:"phone_number" json:"phone_number"`
	CryptoName  *string             `db:"crypto_name" json:"crypto_name,omitempty"`
	BuyPrice    decimal.NullDecimal `db:"buy_price" json:"buy_price"`
	SellPrice   decimal.NullDecimal `db:"sell_price" json:"sell_price"`
}

const bindingColumns = `id, user_id, mentor_id, amount, mentor_commission, stock_id, status, order_profit_amount, created_at, updated_at`

func (s *CopyTradeStore) Create(ctx context.Context, tx Getter, input NewBinding) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO copytrade_details (user_id, mentor_id, amount, mentor_commission, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id
	`, input.UserID, input.MentorID, input.Amount, input.MentorCommission)
	return id, err
}

func (s *CopyTradeStore) GetByID(ctx context.Context, id int64) (models.CopyTradeBinding, error) {
	var binding models.CopyTradeBinding
	err := s.db.GetContext(ctx, &binding, `SELECT `+bindingColumns+` FROM copytrade_details WHERE id = $1`, id)
	return binding, err
}

func (s *CopyTradeStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.CopyTradeBinding, error) {
	var binding models.CopyTradeBinding
	err := tx.GetContext(ctx, &binding, `SELECT `+bindingColumns+` FROM copytrade_details WHERE id = $1 FOR UPDATE`, id)
	return binding, err
}

// Transition changes status only while the binding is still in from and has
// not been claimed by a stock.
func (s *CopyTradeStore) Transition(ctx context.Context, tx Execer, id int64, from, to models.BindingStatus) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE copytrade_details
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND stock_id IS NULL
	`, to, id, from))
}

// ClaimForStock binds every approved, unclaimed binding of the mentor to the
// stock in a single statement and returns the claimed ids.
func (s *CopyTradeStore) ClaimForStock(ctx context.Context, tx Selecter, mentorID, stockID int64) ([]int64, error) {
	ids := []int64{}
	err := tx.SelectContext(ctx, &ids, `
		UPDATE copytrade_details
		SET stock_id = $1, updated_at = NOW()
		WHERE mentor_id = $2 AND status = 'approved' AND stock_id IS NULL
		RETURNING id
	`, stockID, mentorID)
	return ids, err
}

// LockBound returns the approved bindings claimed by a stock, row-locked.
func (s *CopyTradeStore) LockBound(ctx context.Context, tx Selecter, stockID int64) ([]models.CopyTradeBinding, error) {
	bindings := []models.CopyTradeBinding{}
	err := tx.SelectContext(ctx, &bindings, `
		SELECT `+bindingColumns+`
		FROM copytrade_details
		WHERE stock_id = $1 AND status = 'approved'
		ORDER BY id
		FOR UPDATE
	`, stockID)
	return bindings, err
}

func (s *CopyTradeStore) ListBound(ctx context.Context, stockID int64) ([]models.CopyTradeBinding, error) {
	bindings := []models.CopyTradeBinding{}
	err := s.db.SelectContext(ctx, &bindings, `
		SELECT `+bindingColumns+`
		FROM copytrade_details
		WHERE stock_id = $1 AND status = 'approved'
		ORDER BY id
	`, stockID)
	return bindings, err
}

func (s *CopyTradeStore) SettledIDs(ctx context.Context, stockID int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM copytrade_details WHERE stock_id = $1 AND status = 'settled' ORDER BY id
	`, stockID)
	return ids, err
}

// MarkSettled records the realised profit. The status guard makes a second
// settlement of the same binding a no-op.
func (s *CopyTradeStore) MarkSettled(ctx context.Context, tx Execer, id int64, profit decimal.Decimal) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE copytrade_details
		SET status = 'settled', order_profit_amount = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'approved'
	`, profit, id))
}

func (s *CopyTradeStore) ListByUser(ctx context.Context, userID int64, statuses []models.BindingStatus) ([]BindingView, error) {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	rows := []BindingView{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.user_id, c.mentor_id, c.amount, c.mentor_commission, c.stock_id, c.status,
		       c.order_profit_amount, c.created_at, c.updated_at,
		       m.name AS mentor_name, u.phone_number,
		       s.crypto_name, s.buy_price, s.sell_price
		FROM copytrade_details c
		JOIN mentors m ON m.id = c.mentor_id
		JOIN users u ON u.id = c.user_id
		LEFT JOIN stocks s ON s.id = c.stock_id
		WHERE c.user_id = $1 AND c.status = ANY($2)
		ORDER BY c.created_at DESC
	`, userID, pq.Array(values))
	return rows, err
}

func (s *CopyTradeStore) ListAll(ctx context.Context, status string, limit, offset int) ([]BindingView, error) {
	rows := []BindingView{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.user_id, c.mentor_id, c.amount, c.mentor_commission, c.stock_id, c.status,
		       c.order_profit_amount, c.created_at, c.updated_at,
		       m.name AS mentor_name, u.phone_number,
		       s.crypto_name, s.buy_price, s.sell_price
		FROM copytrade_details c
		JOIN mentors m ON m.id = c.mentor_id
		JOIN users u ON u.id = c.user_id
		LEFT JOIN stocks s ON s.id = c.stock_id
		WHERE $1 = '' OR c.status = $1
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}
