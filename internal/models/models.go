package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BindingStatus string

const (
	BindingPending   BindingStatus = "pending"
	BindingApproved  BindingStatus = "approved"
	BindingRejected  BindingStatus = "rejected"
	BindingCancelled BindingStatus = "cancelled"
	BindingSettled   BindingStatus = "settled"
)

func (s BindingStatus) Valid() bool {
	switch s {
	case BindingPending, BindingApproved, BindingRejected, BindingCancelled, BindingSettled:
		return true
	}
	return false
}

type StockStatus string

const (
	StockPending   StockStatus = "pending"
	StockPublished StockStatus = "published"
	StockSettled   StockStatus = "settled"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewRejected
}

const (
	ChannelActive   = "active"
	ChannelInactive = "inactive"
)

type User struct {
	ID               int64           `db:"id" json:"id"`
	PhoneNumber      string          `db:"phone_number" json:"phone_number"`
	PasswordHash     string          `db:"password_hash" json:"-"`
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	AvailableBalance decimal.Decimal `db:"available_balance" json:"available_balance"`
	WalletAddress    *string         `db:"wallet_address" json:"wallet_address,omitempty"`
	ReferralCode     string          `db:"referral_code" json:"referral_code"`
	InvitedBy        *int64          `db:"invited_by" json:"invited_by,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Balances is the pair of user funds mutated together under optimistic locking.
type Balances struct {
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Available decimal.Decimal `db:"available_balance" json:"available_balance"`
}

type Mentor struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Years      int             `db:"years" json:"years"`
	Assets     decimal.Decimal `db:"assets" json:"assets"`
	Commission decimal.Decimal `db:"commission" json:"commission"`
	Img        string          `db:"img" json:"img"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type Stock struct {
	ID          int64           `db:"id" json:"id"`
	MentorID    int64           `db:"mentor_id" json:"mentor_id"`
	CryptoName  string          `db:"crypto_name" json:"crypto_name"`
	BuyPrice    decimal.Decimal `db:"buy_price" json:"buy_price"`
	SellPrice   decimal.Decimal `db:"sell_price" json:"sell_price"`
	Status      StockStatus     `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	PublishedAt *time.Time      `db:"published_at" json:"published_at,omitempty"`
	SettledAt   *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
}

// CopyTradeBinding is a follower's commitment of principal to a mentor,
// bound to a stock once the stock is published.
type CopyTradeBinding struct {
	ID                int64               `db:"id" json:"id"`
	UserID            int64               `db:"user_id" json:"user_id"`
	MentorID          int64               `db:"mentor_id" json:"mentor_id"`
	Amount            decimal.Decimal     `db:"amount" json:"amount"`
	MentorCommission  decimal.Decimal     `db:"mentor_commission" json:"mentor_commission"`
	StockID           *int64              `db:"stock_id" json:"stock_id,omitempty"`
	Status            BindingStatus       `db:"status" json:"status"`
	OrderProfitAmount decimal.NullDecimal `db:"order_profit_amount" json:"order_profit_amount"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

type Recharge struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	ChannelID int64           `db:"channel_id" json:"channel_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	TxID      string          `db:"tx_id" json:"tx_id"`
	Status    ReviewStatus    `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Withdraw struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	WalletAddress string          `db:"wallet_address" json:"wallet_address"`
	Channel       string          `db:"channel" json:"channel"`
	Status        ReviewStatus    `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type Channel struct {
	ID            int64     `db:"id" json:"id"`
	CurrencyName  string    `db:"currency_name" json:"currency_name"`
	Network       string    `db:"network" json:"network"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SettlementCredit is a per-user balance delta recorded when a stock settles
// and applied to the user row afterwards.
type SettlementCredit struct {
	ID        int64           `db:"id" json:"id"`
	StockID   int64           `db:"stock_id" json:"stock_id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Unfreeze  decimal.Decimal `db:"unfreeze" json:"unfreeze"`
	Profit    decimal.Decimal `db:"profit" json:"profit"`
	AppliedAt *time.Time      `db:"applied_at" json:"applied_at,omitempty"`
	Attempts  int             `db:"attempts" json:"attempts"`
	LastError *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Admin roles. Super admins pass every role check.
const (
	RoleManageMentors    = "CanManageMentors"
	RoleManageStocks     = "CanManageStocks"
	RoleSettle           = "CanSettle"
	RoleReviewCopyTrades = "CanReviewCopyTrades"
	RoleReviewFunds      = "CanReviewFunds"
	RoleManageChannels   = "CanManageChannels"
	RoleViewUsers        = "CanViewUsers"
	RoleViewAudit        = "CanViewAudit"
)

var Roles = []string{
	RoleManageMentors,
	RoleManageStocks,
	RoleSettle,
	RoleReviewCopyTrades,
	RoleReviewFunds,
	RoleManageChannels,
	RoleViewUsers,
	RoleViewAudit,
}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
