package store

import (
	"context"

	"copytrade/internal/referral"
)

type ReferralStore struct {
	db DB
}

func NewReferralStore(db DB) *ReferralStore {
	return &ReferralStore{db: db}
}

// Downline loads every user within maxDepth invitation hops of rootID, with
// the sum of their approved recharges, in one statement so the counts come
// from a single snapshot. The path array stops the walk on cyclic data.
func (s *ReferralStore) Downline(ctx context.Context, rootID int64, maxDepth int) ([]referral.Node, error) {
	rows := []referral.Node{}
	err := s.db.SelectContext(ctx, &rows, `
		WITH RECURSIVE downline AS (
			SELECT u.id, u.invited_by, u.phone_number, u.created_at, 1 AS level,
			       ARRAY[$1::bigint, u.id] AS path
			FROM users u
			WHERE u.invited_by = $1
			UNION ALL
			SELECT u.id, u.invited_by, u.phone_number, u.created_at, d.level + 1,
			       d.path || u.id
			FROM users u
			JOIN downline d ON u.invited_by = d.id
			WHERE d.level < $2 AND NOT u.id = ANY(d.path)
		)
		SELECT d.id, d.invited_by, d.phone_number, d.created_at,
		       COALESCE((
		           SELECT SUM(r.amount) FROM recharges r
		           WHERE r.user_id = d.id AND r.status = 'approved'
		       ), 0) AS total_recharge
		FROM downline d
		ORDER BY d.level, d.id
	`, rootID, maxDepth)
	return rows, err
}
