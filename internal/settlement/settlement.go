// Package settlement computes how a closed position is distributed over the
// copy-trade bindings claimed by it. It performs no I/O.
package settlement

import (
	"errors"
	"fmt"
	"sort"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

// Scale matches the NUMERIC(20,8) money columns.
const Scale = 8

var (
	ErrInvalidPrice      = errors.New("buy and sell prices must be positive")
	ErrInvalidCommission = errors.New("commission must be between 0 and 100")
	ErrInvalidAmount     = errors.New("binding amount must be positive")
	ErrDuplicateBinding  = errors.New("binding listed twice")
)

var hundred = decimal.NewFromInt(100)

type Position struct {
	StockID   int64           `json:"stock_id"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
}

// IsLossMaking reports whether settling the position reduces follower balances.
// A flat position counts as loss-making, the operator confirms it either way.
func (p Position) IsLossMaking() bool {
	return p.SellPrice.LessThanOrEqual(p.BuyPrice)
}

func (p Position) validate() error {
	if !p.BuyPrice.IsPositive() || p.SellPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

type Binding struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	MentorCommission decimal.Decimal `json:"mentor_commission"`
}

func (b Binding) validate() error {
	if !b.Amount.IsPositive() {
		return fmt.Errorf("binding %d: %w", b.ID, ErrInvalidAmount)
	}
	if b.MentorCommission.IsNegative() || b.MentorCommission.GreaterThan(hundred) {
		return fmt.Errorf("binding %d: %w", b.ID, ErrInvalidCommission)
	}
	return nil
}

type Outcome struct {
	BindingID   int64           `json:"binding_id"`
	UserID      int64           `json:"user_id"`
	AssetUnits  decimal.Decimal `json:"asset_units"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	UserProfit  decimal.Decimal `json:"user_profit"`
}

// UserDelta is everything one settlement does to one user's balances:
// principal returned to available funds plus the net profit (or loss).
type UserDelta struct {
	UserID   int64           `json:"user_id"`
	Unfreeze decimal.Decimal `json:"unfreeze"`
	Profit   decimal.Decimal `json:"profit"`
}

func (d UserDelta) Apply(current models.Balances) models.Balances {
	return models.Balances{
		Balance:   current.Balance.Add(d.Profit),
		Available: current.Available.Add(d.Unfreeze).Add(d.Profit),
	}
}

type Plan struct {
	Position      Position        `json:"position"`
	Outcomes      []Outcome       `json:"outcomes"`
	Deltas        []UserDelta     `json:"deltas"`
	TotalReleased decimal.Decimal `json:"total_released"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}

func (p Plan) BindingIDs() []int64 {
	ids := make([]int64, 0, len(p.Outcomes))
	for _, outcome := range p.Outcomes {
		ids = append(ids, outcome.BindingID)
	}
	return ids
}

func (p Plan) Delta(userID int64) (UserDelta, bool) {
	for _, delta := range p.Deltas {
		if delta.UserID == userID {
			return delta, true
		}
	}
	return UserDelta{}, false
}

// Calculate prices every binding against the position. The commission is
// applied to the signed result, so a mentor's share also reduces a loss.
// Each user profit is rounded once, from the exact product, to Scale places.
func Calculate(pos Position, bindings []Binding) (Plan, error) {
	if err := pos.validate(); err != nil {
		return Plan{}, err
	}
	plan := Plan{
		Position:      pos,
		Outcomes:      make([]Outcome, 0, len(bindings)),
		TotalReleased: decimal.Zero,
		TotalProfit:   decimal.Zero,
	}
	spread := pos.SellPrice.Sub(pos.BuyPrice)
	seen := make(map[int64]struct{}, len(bindings))
	perUser := make(map[int64]*UserDelta)
	for _, binding := range bindings {
		if _, dup := seen[binding.ID]; dup {
			return Plan{}, fmt.Errorf("binding %d: %w", binding.ID, ErrDuplicateBinding)
		}
		seen[binding.ID] = struct{}{}
		if err := binding.validate(); err != nil {
			return Plan{}, err
		}
		gross := binding.Amount.Mul(spread)
		userProfit := gross.Mul(hundred.Sub(binding.MentorCommission)).
			DivRound(pos.BuyPrice.Mul(hundred), Scale)
		plan.Outcomes = append(plan.Outcomes, Outcome{
			BindingID:   binding.ID,
			UserID:      binding.UserID,
			AssetUnits:  binding.Amount.DivRound(pos.BuyPrice, Scale),
			GrossProfit: gross.DivRound(pos.BuyPrice, Scale),
			UserProfit:  userProfit,
		})
		delta, ok := perUser[binding.UserID]
		if !ok {
			delta = &UserDelta{UserID: binding.UserID, Unfreeze: decimal.Zero, Profit: decimal.Zero}
			perUser[binding.UserID] = delta
		}
		delta.Unfreeze = delta.Unfreeze.Add(binding.Amount)
		delta.Profit = delta.Profit.Add(userProfit)
		plan.TotalReleased = plan.TotalReleased.Add(binding.Amount)
		plan.TotalProfit = plan.TotalProfit.Add(userProfit)
	}
	plan.Deltas = make([]UserDelta, 0, len(perUser))
	for _, delta := range perUser {
		plan.Deltas = append(plan.Deltas, *delta)
	}
	sort.Slice(plan.Deltas, func(i, j int) bool {
		return plan.Deltas[i].UserID < plan.Deltas[j].UserID
	})
	return plan, nil
}
