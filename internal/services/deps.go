package services

import (
	"context"

	"copytrade/internal/models"
	"copytrade/internal/money"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	GetByID(ctx context.Context, userID int64) (models.User, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	GetBalances(ctx context.Context, q store.Getter, userID int64) (models.Balances, error)
	CompareAndSwapBalances(ctx context.Context, tx store.Execer, userID int64, prev, next models.Balances) (bool, error)
	IncrementBalance(ctx context.Context, tx store.Execer, userID int64, amount decimal.Decimal) error
	DecrementBalance(ctx context.Context, tx store.Getter, userID int64, amount decimal.Decimal) (bool, error)
	SetWalletAddress(ctx context.Context, userID int64, address string) error
}

type StockStore interface {
	GetByID(ctx context.Context, id int64) (models.Stock, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Stock, error)
	Transition(ctx context.Context, tx store.Execer, id int64, from, to models.StockStatus) (int64, error)
}

type BindingStore interface {
	Create(ctx context.Context, tx store.Getter, input store.NewBinding) (int64, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.CopyTradeBinding, error)
	Transition(ctx context.Context, tx store.Execer, id int64, from, to models.BindingStatus) (int64, error)
	ClaimForStock(ctx context.Context, tx store.Selecter, mentorID, stockID int64) ([]int64, error)
	LockBound(ctx context.Context, tx store.Selecter, stockID int64) ([]models.CopyTradeBinding, error)
	ListBound(ctx context.Context, stockID int64) ([]models.CopyTradeBinding, error)
	SettledIDs(ctx context.Context, stockID int64) ([]int64, error)
	MarkSettled(ctx context.Context, tx store.Execer, id int64, profit decimal.Decimal) (int64, error)
}

type CreditStore interface {
	Insert(ctx context.Context, tx store.Execer, stockID int64, input store.CreditInput) error
	ListUnapplied(ctx context.Context, stockID int64) ([]models.SettlementCredit, error)
	GetUnapplied(ctx context.Context, tx store.Getter, stockID, userID int64) (models.SettlementCredit, error)
	MarkApplied(ctx context.Context, tx store.Execer, id int64) (int64, error)
	RecordFailure(ctx context.Context, stockID, userID int64, message string) error
}

type MentorStore interface {
	GetByID(ctx context.Context, id int64) (models.Mentor, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID int64, action, entityType, entityID string, data any) error
}

type Pusher interface {
	Broadcast(userID int64, event websocket.Event)
}

// pushBalance sends the post-commit balances. update carries the reason
// and, for settlement credits, the stock and signed profit.
func pushBalance(hub Pusher, userID int64, balances models.Balances, update websocket.BalanceUpdate) {
	if hub == nil {
		return
	}
	update.Balance = money.Format(balances.Balance)
	update.AvailableBalance = money.Format(balances.Available)
	hub.Broadcast(userID, websocket.Event{Type: websocket.EventBalance, Data: update})
}

type RechargeStore interface {
	Create(ctx context.Context, tx store.Getter, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Recharge, error)
	Review(ctx context.Context, tx store.Execer, id int64, to models.ReviewStatus) (int64, error)
}

type WithdrawStore interface {
	Create(ctx context.Context, tx store.Getter, userID int64, amount decimal.Decimal, address, channel string) (int64, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Withdraw, error)
	Review(ctx context.Context, tx store.Execer, id int64, to models.ReviewStatus) (int64, error)
	PendingTotal(ctx context.Context, tx store.Getter, userID int64) (decimal.Decimal, error)
}

type ChannelStore interface {
	GetByID(ctx context.Context, id int64) (models.Channel, error)
}
