package store

import (
	"context"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type RechargeStore struct {
	db DB
}

func NewRechargeStore(db DB) *RechargeStore {
	return &RechargeStore{db: db}
}

type RechargeView struct {
	models.Recharge
	PhoneNumber  string `db:"phone_number" json:"phone_number"`
	CurrencyName string `db:"currency_name" json:"currency_name"`
	Network      string `db:"network" json:"network"`
}

func (s *RechargeStore) Create(ctx context.Context, tx Getter, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO recharges (user_id, channel_id, amount, tx_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id
	`, userID, channelID, amount, txID)
	return id, err
}

func (s *RechargeStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Recharge, error) {
	var recharge models.Recharge
	err := tx.GetContext(ctx, &recharge, `
		SELECT id, user_id, channel_id, amount, tx_id, status, created_at
		FROM recharges
		WHERE id = $1
		FOR UPDATE
	`, id)
	return recharge, err
}

func (s *RechargeStore) Review(ctx context.Context, tx Execer, id int64, to models.ReviewStatus) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE recharges SET status = $1 WHERE id = $2 AND status = 'pending'
	`, to, id))
}

const rechargeViewQuery = `
	SELECT r.id, r.user_id, r.channel_id, r.amount, r.tx_id, r.status, r.created_at,
	       u.phone_number, ch.currency_name, ch.network
	FROM recharges r
	JOIN users u ON u.id = r.user_id
	JOIN channels ch ON ch.id = r.channel_id
`

func (s *RechargeStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]RechargeView, error) {
	rows := []RechargeView{}
	err := s.db.SelectContext(ctx, &rows, rechargeViewQuery+`
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

func (s *RechargeStore) ListAll(ctx context.Context, status string, limit, offset int) ([]RechargeView, error) {
	rows := []RechargeView{}
	err := s.db.SelectContext(ctx, &rows, rechargeViewQuery+`
		WHERE $1 = '' OR r.status = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}
