package store

import (
	"context"

	"copytrade/internal/models"
)

type ChannelStore struct {
	db DB
}

func NewChannelStore(db DB) *ChannelStore {
	return &ChannelStore{db: db}
}

type ChannelInput struct {
	CurrencyName  string
	Network       string
	WalletAddress string
	Status        string
}

func (s *ChannelStore) Create(ctx context.Context, tx Getter, input ChannelInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO channels (currency_name, network, wallet_address, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, input.CurrencyName, input.Network, input.WalletAddress, input.Status)
	return id, err
}

func (s *ChannelStore) Update(ctx context.Context, tx Execer, id int64, input ChannelInput) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE channels
		SET currency_name = $1, network = $2, wallet_address = $3, status = $4
		WHERE id = $5
	`, input.CurrencyName, input.Network, input.WalletAddress, input.Status, id))
}

func (s *ChannelStore) Delete(ctx context.Context, tx Execer, id int64) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		DELETE FROM channels
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM recharges WHERE channel_id = $1)
	`, id))
}

func (s *ChannelStore) GetByID(ctx context.Context, id int64) (models.Channel, error) {
	var channel models.Channel
	err := s.db.GetContext(ctx, &channel, `
		SELECT id, currency_name, network, wallet_address, status, created_at
		FROM channels
		WHERE id = $1
	`, id)
	return channel, err
}

func (s *ChannelStore) List(ctx context.Context, activeOnly bool) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.SelectContext(ctx, &channels, `
		SELECT id, currency_name, network, wallet_address, status, created_at
		FROM channels
		WHERE NOT $1 OR status = 'active'
		ORDER BY id
	`, activeOnly)
	return channels, err
}
