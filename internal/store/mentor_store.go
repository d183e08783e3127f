package store

import (
	"context"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

type MentorStore struct {
	db DB
}

func NewMentorStore(db DB) *MentorStore {
	return &MentorStore{db: db}
}

type MentorInput struct {
	Name       string
	Years      int
	Assets     decimal.Decimal
	Commission decimal.Decimal
	Img        string
}

func (s *MentorStore) Create(ctx context.Context, tx Getter, input MentorInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO mentors (name, years, assets, commission, img)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, input.Name, input.Years, input.Assets, input.Commission, input.Img)
	return id, err
}

func (s *MentorStore) Update(ctx context.Context, tx Execer, id int64, input MentorInput) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE mentors
		SET name = $1, years = $2, assets = $3, commission = $4, img = $5
		WHERE id = $6
	`, input.Name, input.Years, input.Assets, input.Commission, input.Img, id))
}

// Delete removes a mentor nobody has followed yet.
func (s *MentorStore) Delete(ctx context.Context, tx Execer, id int64) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		DELETE FROM mentors
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM copytrade_details WHERE mentor_id = $1)
		  AND NOT EXISTS (SELECT 1 FROM stocks WHERE mentor_id = $1)
	`, id))
}

func (s *MentorStore) GetByID(ctx context.Context, id int64) (models.Mentor, error) {
	var mentor models.Mentor
	err := s.db.GetContext(ctx, &mentor, `
		SELECT id, name, years, assets, commission, img, created_at
		FROM mentors
		WHERE id = $1
	`, id)
	return mentor, err
}

func (s *MentorStore) List(ctx context.Context) ([]models.Mentor, error) {
	mentors := []models.Mentor{}
	err := s.db.SelectContext(ctx, &mentors, `
		SELECT id, name, years, assets, commission, img, created_at
		FROM mentors
		ORDER BY id
	`)
	return mentors, err
}
