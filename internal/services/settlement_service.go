package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/metrics"
	"copytrade/internal/models"
	"copytrade/internal/money"
	"copytrade/internal/settlement"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type SettlementService struct {
	txRunner   db.TxRunner
	stocks     StockStore
	bindings   BindingStore
	credits    CreditStore
	users      UserStore
	audit      AuditStore
	hub        Pusher
	retryLimit int
	workers    int
}

func NewSettlementService(txRunner db.TxRunner, stocks StockStore, bindings BindingStore, credits CreditStore, users UserStore, audit AuditStore, hub Pusher, retryLimit, workers int) *SettlementService {
	if retryLimit <= 0 {
		retryLimit = 5
	}
	if workers <= 0 {
		workers = 1
	}
	return &SettlementService{
		txRunner:   txRunner,
		stocks:     stocks,
		bindings:   bindings,
		credits:    credits,
		users:      users,
		audit:      audit,
		hub:        hub,
		retryLimit: retryLimit,
		workers:    workers,
	}
}

type PublishResult struct {
	StockID           int64              `json:"stock_id"`
	Status            models.StockStatus `json:"status"`
	ClaimedBindingIDs []int64            `json:"claimed_binding_ids"`
}

// Publish claims the mentor's approved, unbound bindings for a pending stock
// and marks it published. Bindings approved later are left for the mentor's
// next stock.
func (s *SettlementService) Publish(ctx context.Context, actorID, stockID int64) (PublishResult, error) {
	if stockID <= 0 {
		return PublishResult{}, ErrInvalidInput
	}
	var result PublishResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		stock, err := s.stocks.GetForUpdate(ctx, tx, stockID)
		if err != nil {
			if store.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if stock.Status != models.StockPending {
			return ErrInvalidState
		}
		claimed, err := s.bindings.ClaimForStock(ctx, tx, stock.MentorID, stockID)
		if err != nil {
			return err
		}
		rows, err := s.stocks.Transition(ctx, tx, stockID, models.StockPending, models.StockPublished)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrConflict
		}
		result = PublishResult{StockID: stockID, Status: models.StockPublished, ClaimedBindingIDs: claimed}
		return s.audit.Log(ctx, tx, actorID, "publish_stock", "stock", strconv.FormatInt(stockID, 10), map[string]any{
			"mentor_id": stock.MentorID,
			"claimed":   claimed,
		})
	})
	if err != nil {
		return PublishResult{}, err
	}
	logger.Log.WithFields(logrus.Fields{
		"stock_id": stockID,
		"claimed":  len(result.ClaimedBindingIDs),
	}).Info("stock published")
	return result, nil
}

type SettleRequest struct {
	ActorID     int64
	StockID     int64
	ConfirmLoss bool
}

type SettleResult struct {
	StockID           int64   `json:"stock_id"`
	SettledBindingIDs []int64 `json:"settled_binding_ids"`
	AppliedUserIDs    []int64 `json:"applied_user_ids"`
	TotalReleased     string  `json:"total_released,omitempty"`
	TotalProfit       string  `json:"total_profit,omitempty"`
	Resumed           bool    `json:"resumed"`
}

// Settle closes a published stock. Bindings, per-user credits and the stock
// status are committed together; balances are then credited per user, each
// in its own transaction, so one contended user cannot hold back the rest.
// Calling Settle on a settled stock only applies credits still outstanding.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	if req.StockID <= 0 {
		return SettleResult{}, ErrInvalidInput
	}
	stock, err := s.stocks.GetByID(ctx, req.StockID)
	if err != nil {
		if store.IsNotFound(err) {
			return SettleResult{}, ErrNotFound
		}
		return SettleResult{}, err
	}
	switch stock.Status {
	case models.StockSettled:
		return s.Resume(ctx, req.ActorID, req.StockID)
	case models.StockPublished:
	default:
		return SettleResult{}, ErrInvalidState
	}
	if positionOf(stock).IsLossMaking() && !req.ConfirmLoss {
		return SettleResult{}, ErrLossNotConfirmed
	}

	var plan settlement.Plan
	var raced bool
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		raced = false
		locked, err := s.stocks.GetForUpdate(ctx, tx, req.StockID)
		if err != nil {
			return err
		}
		if locked.Status == models.StockSettled {
			raced = true
			return nil
		}
		if locked.Status != models.StockPublished {
			return ErrInvalidState
		}
		rows, err := s.bindings.LockBound(ctx, tx, req.StockID)
		if err != nil {
			return err
		}
		plan, err = settlement.Calculate(positionOf(locked), toSettlementBindings(rows))
		if err != nil {
			return invalid(err)
		}
		for _, outcome := range plan.Outcomes {
			updated, err := s.bindings.MarkSettled(ctx, tx, outcome.BindingID, outcome.UserProfit)
			if err != nil {
				return err
			}
			if updated != 1 {
				return fmt.Errorf("%w: binding %d left approved state", ErrConflict, outcome.BindingID)
			}
		}
		for _, delta := range plan.Deltas {
			if err := s.credits.Insert(ctx, tx, req.StockID, store.CreditInput{
				UserID:   delta.UserID,
				Unfreeze: delta.Unfreeze,
				Profit:   delta.Profit,
			}); err != nil {
				return err
			}
		}
		updated, err := s.stocks.Transition(ctx, tx, req.StockID, models.StockPublished, models.StockSettled)
		if err != nil {
			return err
		}
		if updated != 1 {
			return ErrConflict
		}
		return s.audit.Log(ctx, tx, req.ActorID, "settle_stock", "stock", strconv.FormatInt(req.StockID, 10), map[string]any{
			"bindings":       len(plan.Outcomes),
			"users":          len(plan.Deltas),
			"total_released": plan.TotalReleased.String(),
			"total_profit":   plan.TotalProfit.String(),
			"confirm_loss":   req.ConfirmLoss,
		})
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return SettleResult{}, err
	}
	if raced {
		return s.Resume(ctx, req.ActorID, req.StockID)
	}
	metrics.BindingsSettled.Add(float64(len(plan.Outcomes)))
	logger.Log.WithFields(logrus.Fields{
		"stock_id": req.StockID,
		"bindings": len(plan.Outcomes),
		"users":    len(plan.Deltas),
		"profit":   plan.TotalProfit.String(),
	}).Info("stock settled")

	result, err := s.applyCredits(ctx, req.StockID, plan.BindingIDs())
	result.TotalReleased = plan.TotalReleased.String()
	result.TotalProfit = plan.TotalProfit.String()
	return result, err
}

// Resume applies every outstanding credit of a settled stock. Credits that
// were already applied are never applied twice.
func (s *SettlementService) Resume(ctx context.Context, actorID, stockID int64) (SettleResult, error) {
	if stockID <= 0 {
		return SettleResult{}, ErrInvalidInput
	}
	stock, err := s.stocks.GetByID(ctx, stockID)
	if err != nil {
		if store.IsNotFound(err) {
			return SettleResult{}, ErrNotFound
		}
		return SettleResult{}, err
	}
	if stock.Status != models.StockSettled {
		return SettleResult{}, ErrInvalidState
	}
	settledIDs, err := s.bindings.SettledIDs(ctx, stockID)
	if err != nil {
		return SettleResult{}, err
	}
	logger.Log.WithFields(logrus.Fields{
		"stock_id": stockID,
		"actor_id": actorID,
	}).Info("resuming settlement credits")
	result, err := s.applyCredits(ctx, stockID, settledIDs)
	result.Resumed = true
	return result, err
}

// RetryUser applies one user's outstanding credit for a settled stock.
func (s *SettlementService) RetryUser(ctx context.Context, actorID, stockID, userID int64) (SettleResult, error) {
	if stockID <= 0 || userID <= 0 {
		return SettleResult{}, ErrInvalidInput
	}
	stock, err := s.stocks.GetByID(ctx, stockID)
	if err != nil {
		if store.IsNotFound(err) {
			return SettleResult{}, ErrNotFound
		}
		return SettleResult{}, err
	}
	if stock.Status != models.StockSettled {
		return SettleResult{}, ErrInvalidState
	}
	settledIDs, err := s.bindings.SettledIDs(ctx, stockID)
	if err != nil {
		return SettleResult{}, err
	}
	result := SettleResult{StockID: stockID, SettledBindingIDs: settledIDs, AppliedUserIDs: []int64{}, Resumed: true}
	applied, err := s.applyCredit(ctx, stockID, userID)
	if err != nil {
		s.recordFailure(ctx, stockID, userID, err)
		metrics.SettlementsTotal.WithLabelValues("partial").Inc()
		return result, &PartialFailureError{
			StockID:           stockID,
			SettledBindingIDs: settledIDs,
			FailedUserIDs:     []int64{userID},
			Causes:            map[int64]error{userID: err},
		}
	}
	if applied {
		result.AppliedUserIDs = append(result.AppliedUserIDs, userID)
	}
	logger.Log.WithFields(logrus.Fields{
		"stock_id": stockID,
		"user_id":  userID,
		"actor_id": actorID,
		"applied":  applied,
	}).Info("settlement credit retried")
	return result, nil
}

// Preview computes the settlement of a published stock without writing.
func (s *SettlementService) Preview(ctx context.Context, stockID int64) (settlement.Plan, error) {
	if stockID <= 0 {
		return settlement.Plan{}, ErrInvalidInput
	}
	stock, err := s.stocks.GetByID(ctx, stockID)
	if err != nil {
		if store.IsNotFound(err) {
			return settlement.Plan{}, ErrNotFound
		}
		return settlement.Plan{}, err
	}
	if stock.Status != models.StockPublished {
		return settlement.Plan{}, ErrInvalidState
	}
	rows, err := s.bindings.ListBound(ctx, stockID)
	if err != nil {
		return settlement.Plan{}, err
	}
	plan, err := settlement.Calculate(positionOf(stock), toSettlementBindings(rows))
	if err != nil {
		return settlement.Plan{}, invalid(err)
	}
	return plan, nil
}

func (s *SettlementService) applyCredits(ctx context.Context, stockID int64, settledIDs []int64) (SettleResult, error) {
	result := SettleResult{StockID: stockID, SettledBindingIDs: settledIDs, AppliedUserIDs: []int64{}}
	if result.SettledBindingIDs == nil {
		result.SettledBindingIDs = []int64{}
	}
	credits, err := s.credits.ListUnapplied(ctx, stockID)
	if err != nil {
		return result, err
	}

	var (
		mu       sync.Mutex
		failures = make(map[int64]error)
		group    errgroup.Group
	)
	group.SetLimit(s.workers)
	for _, credit := range credits {
		userID := credit.UserID
		group.Go(func() error {
			applied, err := s.applyCredit(ctx, stockID, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[userID] = err
				return nil
			}
			if applied {
				result.AppliedUserIDs = append(result.AppliedUserIDs, userID)
			}
			return nil
		})
	}
	_ = group.Wait()
	sort.Slice(result.AppliedUserIDs, func(i, j int) bool { return result.AppliedUserIDs[i] < result.AppliedUserIDs[j] })

	if len(failures) == 0 {
		metrics.SettlementsTotal.WithLabelValues("ok").Inc()
		return result, nil
	}
	failed := make([]int64, 0, len(failures))
	for userID, cause := range failures {
		failed = append(failed, userID)
		s.recordFailure(ctx, stockID, userID, cause)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	metrics.SettlementsTotal.WithLabelValues("partial").Inc()
	metrics.CreditFailures.Add(float64(len(failed)))
	return result, &PartialFailureError{
		StockID:           stockID,
		SettledBindingIDs: result.SettledBindingIDs,
		FailedUserIDs:     failed,
		Causes:            failures,
	}
}

// applyCredit moves one credit onto the user's balances with a
// compare-and-swap, re-reading and retrying when another writer wins.
// It reports false when there was nothing left to apply.
func (s *SettlementService) applyCredit(ctx context.Context, stockID, userID int64) (bool, error) {
	var (
		after   models.Balances
		profit  decimal.Decimal
		applied bool
	)
	fields := logrus.Fields{"stock_id": stockID, "user_id": userID}
	err := retryOnConflict(ctx, s.retryLimit, fields, func() error {
		return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			applied = false
			credit, err := s.credits.GetUnapplied(ctx, tx, stockID, userID)
			if err != nil {
				if store.IsNotFound(err) {
					return nil
				}
				return err
			}
			prev, err := s.users.GetBalances(ctx, tx, userID)
			if err != nil {
				return err
			}
			next := settlement.UserDelta{UserID: userID, Unfreeze: credit.Unfreeze, Profit: credit.Profit}.Apply(prev)
			swapped, err := s.users.CompareAndSwapBalances(ctx, tx, userID, prev, next)
			if err != nil {
				return err
			}
			if !swapped {
				return ErrConflict
			}
			marked, err := s.credits.MarkApplied(ctx, tx, credit.ID)
			if err != nil {
				return err
			}
			if marked != 1 {
				return ErrConflict
			}
			after = next
			profit = credit.Profit
			applied = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if applied {
		pushBalance(s.hub, userID, after, websocket.BalanceUpdate{
			Reason:  "settlement",
			StockID: stockID,
			Profit:  money.FormatSigned(profit),
		})
	}
	return applied, nil
}

func (s *SettlementService) recordFailure(ctx context.Context, stockID, userID int64, cause error) {
	entry := logger.Log.WithFields(logrus.Fields{
		"stock_id": stockID,
		"user_id":  userID,
	})
	entry.WithError(cause).Warn("settlement credit not applied")
	if err := s.credits.RecordFailure(context.WithoutCancel(ctx), stockID, userID, cause.Error()); err != nil {
		entry.WithError(err).Error("unable to record credit failure")
	}
}

func positionOf(stock models.Stock) settlement.Position {
	return settlement.Position{StockID: stock.ID, BuyPrice: stock.BuyPrice, SellPrice: stock.SellPrice}
}

func toSettlementBindings(rows []models.CopyTradeBinding) []settlement.Binding {
	bindings := make([]settlement.Binding, 0, len(rows))
	for _, row := range rows {
		bindings = append(bindings, settlement.Binding{
			ID:               row.ID,
			UserID:           row.UserID,
			Amount:           row.Amount,
			MentorCommission: row.MentorCommission,
		})
	}
	return bindings
}
