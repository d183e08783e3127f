package services

import (
	"context"
	"strconv"

	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/models"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CopyTradeService runs the follower side of a binding: request, review and
// cancellation. Approval locks the principal out of available_balance until
// the bound stock settles.
type CopyTradeService struct {
	txRunner   db.TxRunner
	bindings   BindingStore
	mentors    MentorStore
	users      UserStore
	audit      AuditStore
	hub        Pusher
	retryLimit int
}

func NewCopyTradeService(txRunner db.TxRunner, bindings BindingStore, mentors MentorStore, users UserStore, audit AuditStore, hub Pusher, retryLimit int) *CopyTradeService {
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &CopyTradeService{
		txRunner:   txRunner,
		bindings:   bindings,
		mentors:    mentors,
		users:      users,
		audit:      audit,
		hub:        hub,
		retryLimit: retryLimit,
	}
}

type OrderUpdate struct {
	BindingID int64                `json:"binding_id"`
	Status    models.BindingStatus `json:"status"`
}

func (s *CopyTradeService) Follow(ctx context.Context, userID, mentorID int64, amount decimal.Decimal) (int64, error) {
	if userID <= 0 || mentorID <= 0 || !amount.IsPositive() {
		return 0, ErrInvalidInput
	}
	mentor, err := s.mentors.GetByID(ctx, mentorID)
	if err != nil {
		if store.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	var bindingID int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances, err := s.users.GetBalances(ctx, tx, userID)
		if err != nil {
			if store.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if balances.Available.LessThan(amount) {
			return ErrInsufficientBalance
		}
		bindingID, err = s.bindings.Create(ctx, tx, store.NewBinding{
			UserID:           userID,
			MentorID:         mentorID,
			Amount:           amount,
			MentorCommission: mentor.Commission,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "follow_mentor", "copytrade", strconv.FormatInt(bindingID, 10), map[string]any{
			"mentor_id": mentorID,
			"amount":    amount.String(),
		})
	})
	if err != nil {
		return 0, err
	}
	s.pushOrder(userID, bindingID, models.BindingPending)
	return bindingID, nil
}

// Approve accepts a pending binding and moves its amount out of the
// follower's available balance.
func (s *CopyTradeService) Approve(ctx context.Context, actorID, bindingID int64) error {
	if bindingID <= 0 {
		return ErrInvalidInput
	}
	var (
		binding models.CopyTradeBinding
		after   models.Balances
	)
	fields := logrus.Fields{"binding_id": bindingID}
	err := retryOnConflict(ctx, s.retryLimit, fields, func() error {
		return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			binding, err = s.loadPending(ctx, tx, bindingID)
			if err != nil {
				return err
			}
			prev, err := s.users.GetBalances(ctx, tx, binding.UserID)
			if err != nil {
				return err
			}
			if prev.Available.LessThan(binding.Amount) {
				return ErrInsufficientBalance
			}
			next := models.Balances{Balance: prev.Balance, Available: prev.Available.Sub(binding.Amount)}
			swapped, err := s.users.CompareAndSwapBalances(ctx, tx, binding.UserID, prev, next)
			if err != nil {
				return err
			}
			if !swapped {
				return ErrConflict
			}
			if err := s.transition(ctx, tx, bindingID, models.BindingPending, models.BindingApproved); err != nil {
				return err
			}
			after = next
			return s.audit.Log(ctx, tx, actorID, "approve_copytrade", "copytrade", strconv.FormatInt(bindingID, 10), map[string]any{
				"user_id": binding.UserID,
				"amount":  binding.Amount.String(),
			})
		})
	})
	if err != nil {
		return err
	}
	logger.Log.WithFields(logrus.Fields{
		"binding_id": bindingID,
		"user_id":    binding.UserID,
		"actor_id":   actorID,
	}).Info("copy-trade approved")
	s.pushOrder(binding.UserID, bindingID, models.BindingApproved)
	pushBalance(s.hub, binding.UserID, after, websocket.BalanceUpdate{Reason: "copytrade_approved"})
	return nil
}

func (s *CopyTradeService) Reject(ctx context.Context, actorID, bindingID int64) error {
	if bindingID <= 0 {
		return ErrInvalidInput
	}
	var binding models.CopyTradeBinding
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		binding, err = s.loadPending(ctx, tx, bindingID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, bindingID, models.BindingPending, models.BindingRejected); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "reject_copytrade", "copytrade", strconv.FormatInt(bindingID, 10), nil)
	})
	if err != nil {
		return err
	}
	s.pushOrder(binding.UserID, bindingID, models.BindingRejected)
	return nil
}

// Cancel withdraws the actor's own approved binding while no stock has
// claimed it and returns its amount to the available balance.
func (s *CopyTradeService) Cancel(ctx context.Context, actorID, bindingID int64) error {
	if bindingID <= 0 {
		return ErrInvalidInput
	}
	var (
		binding models.CopyTradeBinding
		after   models.Balances
	)
	fields := logrus.Fields{"binding_id": bindingID}
	err := retryOnConflict(ctx, s.retryLimit, fields, func() error {
		return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			binding, err = s.bindings.GetForUpdate(ctx, tx, bindingID)
			if err != nil {
				if store.IsNotFound(err) {
					return ErrNotFound
				}
				return err
			}
			if binding.UserID != actorID {
				return ErrNotFound
			}
			if binding.Status != models.BindingApproved || binding.StockID != nil {
				return ErrInvalidState
			}
			prev, err := s.users.GetBalances(ctx, tx, binding.UserID)
			if err != nil {
				return err
			}
			next := models.Balances{Balance: prev.Balance, Available: prev.Available.Add(binding.Amount)}
			swapped, err := s.users.CompareAndSwapBalances(ctx, tx, binding.UserID, prev, next)
			if err != nil {
				return err
			}
			if !swapped {
				return ErrConflict
			}
			if err := s.transition(ctx, tx, bindingID, models.BindingApproved, models.BindingCancelled); err != nil {
				return err
			}
			after = next
			return s.audit.Log(ctx, tx, actorID, "cancel_copytrade", "copytrade", strconv.FormatInt(bindingID, 10), map[string]any{
				"user_id": binding.UserID,
				"amount":  binding.Amount.String(),
			})
		})
	})
	if err != nil {
		return err
	}
	s.pushOrder(binding.UserID, bindingID, models.BindingCancelled)
	pushBalance(s.hub, binding.UserID, after, websocket.BalanceUpdate{Reason: "copytrade_cancelled"})
	return nil
}

func (s *CopyTradeService) loadPending(ctx context.Context, tx *sqlx.Tx, bindingID int64) (models.CopyTradeBinding, error) {
	binding, err := s.bindings.GetForUpdate(ctx, tx, bindingID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.CopyTradeBinding{}, ErrNotFound
		}
		return models.CopyTradeBinding{}, err
	}
	if binding.Status != models.BindingPending {
		return models.CopyTradeBinding{}, ErrInvalidState
	}
	return binding, nil
}

func (s *CopyTradeService) transition(ctx context.Context, tx *sqlx.Tx, bindingID int64, from, to models.BindingStatus) error {
	rows, err := s.bindings.Transition(ctx, tx, bindingID, from, to)
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrInvalidState
	}
	return nil
}

func (s *CopyTradeService) pushOrder(userID, bindingID int64, status models.BindingStatus) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(userID, websocket.Event{
		Type: websocket.EventOrder,
		Data: OrderUpdate{BindingID: bindingID, Status: status},
	})
}
