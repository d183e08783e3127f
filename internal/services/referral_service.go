package services

import (
	"context"
	"fmt"

	"copytrade/internal/logger"
	"copytrade/internal/referral"

	"github.com/sirupsen/logrus"
)

type DownlineStore interface {
	Downline(ctx context.Context, rootID int64, maxDepth int) ([]referral.Node, error)
}

type ReferralService struct {
	users    UserStore
	downline DownlineStore
}

func NewReferralService(users UserStore, downline DownlineStore) *ReferralService {
	return &ReferralService{users: users, downline: downline}
}

// Stats aggregates the user's downline three levels deep. An invalid or
// unknown user fails before the subtree is read.
func (s *ReferralService) Stats(ctx context.Context, userID int64) (referral.Stats, error) {
	if err := referral.ValidateUserID(userID); err != nil {
		return referral.Stats{}, invalid(err)
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return referral.Stats{}, err
	}
	if !exists {
		return referral.Stats{}, invalid(fmt.Errorf("%w: %d", referral.ErrInvalidUser, userID))
	}
	rows, err := s.downline.Downline(ctx, userID, referral.MaxDepth)
	if err != nil {
		return referral.Stats{}, err
	}
	stats := referral.Aggregate(referral.Traverse(userID, rows, referral.MaxDepth))
	for level := range stats.ByLevel {
		for i := range stats.ByLevel[level] {
			member := &stats.ByLevel[level][i]
			member.PhoneNumber = referral.MaskPhone(member.PhoneNumber)
		}
	}
	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"total":   stats.Total,
	}).Debug("referral stats computed")
	return stats, nil
}
