package handlers

import (
	"context"

	"copytrade/internal/models"
	"copytrade/internal/referral"
	"copytrade/internal/services"
	"copytrade/internal/settlement"
	"copytrade/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	GetByID(ctx context.Context, userID int64) (models.User, error)
	GetByPhone(ctx context.Context, phone string) (models.User, error)
	List(ctx context.Context, search string, limit, offset int) ([]store.UserSummary, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, bool, error)
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
	Roles(ctx context.Context, userID int64) ([]string, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID int64, isSuper bool, createdBy *int64) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID int64, role string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID int64, action, entityType, entityID string, data any) error
	List(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

type MentorStore interface {
	Create(ctx context.Context, tx store.Getter, input store.MentorInput) (int64, error)
	Update(ctx context.Context, tx store.Execer, id int64, input store.MentorInput) (int64, error)
	Delete(ctx context.Context, tx store.Execer, id int64) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Mentor, error)
	List(ctx context.Context) ([]models.Mentor, error)
}

type StockStore interface {
	Create(ctx context.Context, tx store.Getter, input store.StockInput) (int64, error)
	UpdatePending(ctx context.Context, tx store.Execer, id int64, input store.StockInput) (int64, error)
	DeletePending(ctx context.Context, tx store.Execer, id int64) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Stock, error)
	List(ctx context.Context, status string, limit, offset int) ([]store.StockOverview, error)
}

type BindingStore interface {
	ListByUser(ctx context.Context, userID int64, statuses []models.BindingStatus) ([]store.BindingView, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]store.BindingView, error)
}

type RechargeStore interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]store.RechargeView, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]store.RechargeView, error)
}

type WithdrawStore interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]store.WithdrawView, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]store.WithdrawView, error)
}

type ChannelStore interface {
	Create(ctx context.Context, tx store.Getter, input store.ChannelInput) (int64, error)
	Update(ctx context.Context, tx store.Execer, id int64, input store.ChannelInput) (int64, error)
	Delete(ctx context.Context, tx store.Execer, id int64) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Channel, error)
	List(ctx context.Context, activeOnly bool) ([]models.Channel, error)
}

type CreditStore interface {
	ListByStock(ctx context.Context, stockID int64) ([]models.SettlementCredit, error)
}

type AccountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error)
	Login(ctx context.Context, phone, password, ip string) (models.User, error)
}

type SettlementService interface {
	Publish(ctx context.Context, actorID, stockID int64) (services.PublishResult, error)
	Settle(ctx context.Context, req services.SettleRequest) (services.SettleResult, error)
	Resume(ctx context.Context, actorID, stockID int64) (services.SettleResult, error)
	RetryUser(ctx context.Context, actorID, stockID, userID int64) (services.SettleResult, error)
	Preview(ctx context.Context, stockID int64) (settlement.Plan, error)
}

type CopyTradeService interface {
	Follow(ctx context.Context, userID, mentorID int64, amount decimal.Decimal) (int64, error)
	Approve(ctx context.Context, actorID, bindingID int64) error
	Reject(ctx context.Context, actorID, bindingID int64) error
	Cancel(ctx context.Context, actorID, bindingID int64) error
}

type FundsService interface {
	SubmitRecharge(ctx context.Context, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error)
	ApproveRecharge(ctx context.Context, actorID, rechargeID int64) error
	RejectRecharge(ctx context.Context, actorID, rechargeID int64) error
	SubmitWithdraw(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error)
	ApproveWithdraw(ctx context.Context, actorID, withdrawID int64) error
	RejectWithdraw(ctx context.Context, actorID, withdrawID int64) error
	SetWalletAddress(ctx context.Context, userID int64, address string) error
}

type ReferralService interface {
	Stats(ctx context.Context, userID int64) (referral.Stats, error)
}
