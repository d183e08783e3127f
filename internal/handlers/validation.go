package handlers

import (
	"errors"
	"strings"

	"copytrade/internal/models"
	"copytrade/internal/money"

	"github.com/shopspring/decimal"
)

var (
	errInvalidAmount     = errors.New("invalid_amount")
	errInvalidPrice      = errors.New("invalid_price")
	errInvalidCommission = errors.New("invalid_commission")
	errMissingField      = errors.New("missing_field")
	errInvalidStatus     = errors.New("invalid_status")
)

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := money.ParsePositive(raw)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	return amount, nil
}

type stockPayload struct {
	MentorID   int64  `json:"mentor_id"`
	CryptoName string `json:"crypto_name"`
	BuyPrice   string `json:"buy_price"`
	SellPrice  string `json:"sell_price"`
}

func (p stockPayload) validate() (decimal.Decimal, decimal.Decimal, error) {
	if p.MentorID <= 0 || strings.TrimSpace(p.CryptoName) == "" {
		return decimal.Zero, decimal.Zero, errMissingField
	}
	buy, err := money.ParsePrice(p.BuyPrice)
	if err != nil || !buy.IsPositive() {
		return decimal.Zero, decimal.Zero, errInvalidPrice
	}
	sell, err := money.ParsePrice(p.SellPrice)
	if err != nil || sell.IsNegative() {
		return decimal.Zero, decimal.Zero, errInvalidPrice
	}
	return buy, sell, nil
}

type mentorPayload struct {
	Name       string `json:"name"`
	Years      int    `json:"years"`
	Assets     string `json:"assets"`
	Commission string `json:"commission"`
	Img        string `json:"img"`
}

var hundred = decimal.NewFromInt(100)

func (p mentorPayload) validate() (decimal.Decimal, decimal.Decimal, error) {
	if strings.TrimSpace(p.Name) == "" || p.Years < 0 {
		return decimal.Zero, decimal.Zero, errMissingField
	}
	assets := decimal.Zero
	if p.Assets != "" {
		parsed, err := money.Parse(p.Assets)
		if err != nil || parsed.IsNegative() {
			return decimal.Zero, decimal.Zero, errInvalidAmount
		}
		assets = parsed
	}
	commission, err := money.Parse(p.Commission)
	if err != nil || commission.IsNegative() || commission.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, errInvalidCommission
	}
	return assets, commission, nil
}

type channelPayload struct {
	CurrencyName  string `json:"currency_name"`
	Network       string `json:"network"`
	WalletAddress string `json:"wallet_address"`
	Status        string `json:"status"`
}

func (p *channelPayload) validate() error {
	if strings.TrimSpace(p.CurrencyName) == "" || strings.TrimSpace(p.Network) == "" || strings.TrimSpace(p.WalletAddress) == "" {
		return errMissingField
	}
	if p.Status == "" {
		p.Status = models.ChannelActive
	}
	if p.Status != models.ChannelActive && p.Status != models.ChannelInactive {
		return errInvalidStatus
	}
	return nil
}
