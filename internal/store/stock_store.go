package store

import (
	"context"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type StockStore struct {
	db DB
}

func NewStockStore(db DB) *StockStore {
	return &StockStore{db: db}
}

type StockInput struct {
	MentorID   int64
	CryptoName string
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
}

// StockOverview is a stock with the binding counts shown on the admin screen.
type StockOverview struct {
	models.Stock
	MentorName     string `db:"mentor_name" json:"mentor_name"`
	BoundCount     int    `db:"bound_count" json:"bound_count"`
	ClaimableCount int    `db:"claimable_count" json:"claimable_count"`
	PendingCredits int    `db:"pending_credits" json:"pending_credits"`
}

const stockColumns = `id, mentor_id, crypto_name, buy_price, sell_price, status, created_at, published_at, settled_at`

func (s *StockStore) Create(ctx context.Context, tx Getter, input StockInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO stocks (mentor_id, crypto_name, buy_price, sell_price, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id
	`, input.MentorID, input.CryptoName, input.BuyPrice, input.SellPrice)
	return id, err
}

// UpdatePending edits a stock that has not been published yet.
func (s *StockStore) UpdatePending(ctx context.Context, tx Execer, id int64, input StockInput) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE stocks
		SET mentor_id = $1, crypto_name = $2, buy_price = $3, sell_price = $4
		WHERE id = $5 AND status = 'pending'
	`, input.MentorID, input.CryptoName, input.BuyPrice, input.SellPrice, id))
}

func (s *StockStore) DeletePending(ctx context.Context, tx Execer, id int64) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		DELETE FROM stocks WHERE id = $1 AND status = 'pending'
	`, id))
}

func (s *StockStore) GetByID(ctx context.Context, id int64) (models.Stock, error) {
	var stock models.Stock
	err := s.db.GetContext(ctx, &stock, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id)
	return stock, err
}

func (s *StockStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Stock, error) {
	var stock models.Stock
	err := tx.GetContext(ctx, &stock, `SELECT `+stockColumns+` FROM stocks WHERE id = $1 FOR UPDATE`, id)
	return stock, err
}

// Transition moves a stock between statuses and stamps the matching time
// column. Zero rows means the stock was not in the from status.
func (s *StockStore) Transition(ctx context.Context, tx Execer, id int64, from, to models.StockStatus) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE stocks
		SET status = $1,
		    published_at = CASE WHEN $1 = 'published' THEN NOW() ELSE published_at END,
		    settled_at = CASE WHEN $1 = 'settled' THEN NOW() ELSE settled_at END
		WHERE id = $2 AND status = $3
	`, to, id, from))
}

func (s *StockStore) List(ctx context.Context, status string, limit, offset int) ([]StockOverview, error) {
	rows := []StockOverview{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.mentor_id, s.crypto_name, s.buy_price, s.sell_price, s.status,
		       s.created_at, s.published_at, s.settled_at,
		       m.name AS mentor_name,
		       (SELECT COUNT(1) FROM copytrade_details c WHERE c.stock_id = s.id) AS bound_count,
		       (SELECT COUNT(1) FROM copytrade_details c
		         WHERE c.mentor_id = s.mentor_id AND c.status = 'approved' AND c.stock_id IS NULL) AS claimable_count,
		       (SELECT COUNT(1) FROM settlement_credits sc
		         WHERE sc.stock_id = s.id AND sc.applied_at IS NULL) AS pending_credits
		FROM stocks s
		JOIN mentors m ON m.id = s.mentor_id
		WHERE $1 = '' OR s.status = $1
		ORDER BY s.id DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}
