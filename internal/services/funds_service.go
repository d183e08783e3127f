package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/models"
	"copytrade/internal/money"
	"copytrade/internal/notification"
	"copytrade/internal/store"
	"copytrade/internal/validator"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WithdrawChannel is the only payout network supported.
const WithdrawChannel = "TRC20"

var (
	MinRecharge = decimal.NewFromInt(1)
	MinWithdraw = decimal.NewFromInt(100)
	MaxWithdraw = decimal.NewFromInt(9999)
)

type FundsService struct {
	txRunner  db.TxRunner
	users     UserStore
	recharges RechargeStore
	withdraws WithdrawStore
	channels  ChannelStore
	audit     AuditStore
	hub       Pusher
	notifier  notification.Notifier
}

func NewFundsService(txRunner db.TxRunner, users UserStore, recharges RechargeStore, withdraws WithdrawStore, channels ChannelStore, audit AuditStore, hub Pusher, notifier notification.Notifier) *FundsService {
	return &FundsService{
		txRunner:  txRunner,
		users:     users,
		recharges: recharges,
		withdraws: withdraws,
		channels:  channels,
		audit:     audit,
		hub:       hub,
		notifier:  notifier,
	}
}

type ReviewUpdate struct {
	ID     int64               `json:"id"`
	Status models.ReviewStatus `json:"status"`
	Amount string              `json:"amount"`
}

func (s *FundsService) SubmitRecharge(ctx context.Context, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error) {
	txID = strings.TrimSpace(txID)
	if userID <= 0 || channelID <= 0 || txID == "" {
		return 0, ErrInvalidInput
	}
	if amount.LessThan(MinRecharge) {
		return 0, ErrRechargeTooSmall
	}
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		if store.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if channel.Status != models.ChannelActive {
		return 0, ErrChannelInactive
	}
	var id int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err = s.recharges.Create(ctx, tx, userID, channelID, amount, txID)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "submit_recharge", "recharge", strconv.FormatInt(id, 10), map[string]any{
			"channel_id": channelID,
			"amount":     amount.String(),
			"tx_id":      txID,
		})
	})
	if err != nil {
		return 0, err
	}
	s.pushReview(userID, websocket.EventRecharge, id, models.ReviewPending, amount)
	return id, nil
}

// ApproveRecharge credits both balances through increment_balance.
func (s *FundsService) ApproveRecharge(ctx context.Context, actorID, rechargeID int64) error {
	return s.reviewRecharge(ctx, actorID, rechargeID, models.ReviewApproved)
}

func (s *FundsService) RejectRecharge(ctx context.Context, actorID, rechargeID int64) error {
	return s.reviewRecharge(ctx, actorID, rechargeID, models.ReviewRejected)
}

func (s *FundsService) reviewRecharge(ctx context.Context, actorID, rechargeID int64, to models.ReviewStatus) error {
	if rechargeID <= 0 {
		return ErrInvalidInput
	}
	var recharge models.Recharge
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		recharge, err = s.recharges.GetForUpdate(ctx, tx, rechargeID)
		if err != nil {
			if store.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if recharge.Status != models.ReviewPending {
			return ErrInvalidState
		}
		rows, err := s.recharges.Review(ctx, tx, rechargeID, to)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrInvalidState
		}
		if to == models.ReviewApproved {
			if err := s.users.IncrementBalance(ctx, tx, recharge.UserID, recharge.Amount); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, actorID, string(to)+"_recharge", "recharge", strconv.FormatInt(rechargeID, 10), map[string]any{
			"user_id": recharge.UserID,
			"amount":  recharge.Amount.String(),
		})
	})
	if err != nil {
		return err
	}
	logger.Log.WithFields(logrus.Fields{
		"recharge_id": rechargeID,
		"user_id":     recharge.UserID,
		"status":      to,
	}).Info("recharge reviewed")
	s.pushReview(recharge.UserID, websocket.EventRecharge, rechargeID, to, recharge.Amount)
	if to == models.ReviewApproved {
		s.pushFreshBalance(ctx, recharge.UserID, "recharge_approved")
	}
	return nil
}

// SubmitWithdraw files a payout request to the user's saved TRC-20 wallet.
// Pending requests count against the available balance so the user cannot
// queue more than they hold.
func (s *FundsService) SubmitWithdraw(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	if userID <= 0 {
		return 0, ErrInvalidInput
	}
	if amount.LessThan(MinWithdraw) || amount.GreaterThan(MaxWithdraw) {
		return 0, ErrWithdrawOutOfRange
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if user.WalletAddress == nil || *user.WalletAddress == "" {
		return 0, ErrWalletMissing
	}
	address := *user.WalletAddress
	if err := validator.ValidateTRC20Address(address); err != nil {
		return 0, invalid(err)
	}
	var id int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances, err := s.users.GetBalances(ctx, tx, userID)
		if err != nil {
			return err
		}
		pending, err := s.withdraws.PendingTotal(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balances.Available.LessThan(amount.Add(pending)) {
			return ErrInsufficientBalance
		}
		id, err = s.withdraws.Create(ctx, tx, userID, amount, address, WithdrawChannel)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "submit_withdraw", "withdraw", strconv.FormatInt(id, 10), map[string]any{
			"amount":         amount.String(),
			"wallet_address": address,
		})
	})
	if err != nil {
		return 0, err
	}
	s.pushReview(userID, websocket.EventWithdraw, id, models.ReviewPending, amount)
	s.alert(ctx, fmt.Sprintf("Withdraw #%d: user %s requested %s USDT to %s",
		id, user.PhoneNumber, money.Format(amount), address))
	return id, nil
}

// ApproveWithdraw debits both balances through decrement_balance, which
// refuses to go below zero.
func (s *FundsService) ApproveWithdraw(ctx context.Context, actorID, withdrawID int64) error {
	return s.reviewWithdraw(ctx, actorID, withdrawID, models.ReviewApproved)
}

func (s *FundsService) RejectWithdraw(ctx context.Context, actorID, withdrawID int64) error {
	return s.reviewWithdraw(ctx, actorID, withdrawID, models.ReviewRejected)
}

func (s *FundsService) reviewWithdraw(ctx context.Context, actorID, withdrawID int64, to models.ReviewStatus) error {
	if withdrawID <= 0 {
		return ErrInvalidInput
	}
	var withdraw models.Withdraw
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		withdraw, err = s.withdraws.GetForUpdate(ctx, tx, withdrawID)
		if err != nil {
			if store.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if withdraw.Status != models.ReviewPending {
			return ErrInvalidState
		}
		if to == models.ReviewApproved {
			ok, err := s.users.DecrementBalance(ctx, tx, withdraw.UserID, withdraw.Amount)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInsufficientBalance
			}
		}
		rows, err := s.withdraws.Review(ctx, tx, withdrawID, to)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrInvalidState
		}
		return s.audit.Log(ctx, tx, actorID, string(to)+"_withdraw", "withdraw", strconv.FormatInt(withdrawID, 10), map[string]any{
			"user_id": withdraw.UserID,
			"amount":  withdraw.Amount.String(),
		})
	})
	if err != nil {
		return err
	}
	logger.Log.WithFields(logrus.Fields{
		"withdraw_id": withdrawID,
		"user_id":     withdraw.UserID,
		"status":      to,
	}).Info("withdraw reviewed")
	s.pushReview(withdraw.UserID, websocket.EventWithdraw, withdrawID, to, withdraw.Amount)
	if to == models.ReviewApproved {
		s.pushFreshBalance(ctx, withdraw.UserID, "withdraw_approved")
	}
	return nil
}

func (s *FundsService) SetWalletAddress(ctx context.Context, userID int64, address string) error {
	address = strings.TrimSpace(address)
	if userID <= 0 {
		return ErrInvalidInput
	}
	if err := validator.ValidateTRC20Address(address); err != nil {
		return invalid(err)
	}
	if err := s.users.SetWalletAddress(ctx, userID, address); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *FundsService) pushReview(userID int64, eventType string, id int64, status models.ReviewStatus, amount decimal.Decimal) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(userID, websocket.Event{
		Type: eventType,
		Data: ReviewUpdate{ID: id, Status: status, Amount: money.Format(amount)},
	})
}

func (s *FundsService) pushFreshBalance(ctx context.Context, userID int64, reason string) {
	balances, err := s.users.GetBalances(ctx, nil, userID)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("balance push skipped")
		return
	}
	pushBalance(s.hub, userID, balances, websocket.BalanceUpdate{Reason: reason})
}

func (s *FundsService) alert(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), text); err != nil {
		logger.Log.WithError(err).Warn("admin alert failed")
	}
}
