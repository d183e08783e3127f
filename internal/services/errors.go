package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("concurrent modification")
	ErrNotFound            = errors.New("not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

var (
	ErrInvalidState       = fmt.Errorf("%w: invalid state", ErrInvalidInput)
	ErrLossNotConfirmed   = fmt.Errorf("%w: loss-making settlement needs confirmation", ErrInvalidInput)
	ErrWithdrawOutOfRange = fmt.Errorf("%w: withdraw amount out of range", ErrInvalidInput)
	ErrRechargeTooSmall   = fmt.Errorf("%w: recharge below minimum", ErrInvalidInput)
	ErrWalletMissing      = fmt.Errorf("%w: wallet address not set", ErrInvalidInput)
	ErrChannelInactive    = fmt.Errorf("%w: channel inactive", ErrInvalidInput)
	ErrReferralCode       = fmt.Errorf("%w: unknown referral code", ErrInvalidInput)
	ErrPhoneTaken         = fmt.Errorf("%w: phone number already registered", ErrConflict)
)

// PartialFailureError reports a settlement that committed but could not
// credit every user. The bindings are settled; the listed users still have an
// unapplied credit that Resume or RetryUser will apply.
type PartialFailureError struct {
	StockID           int64
	SettledBindingIDs []int64
	FailedUserIDs     []int64
	Causes            map[int64]error
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.FailedUserIDs))
	for _, id := range e.FailedUserIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("stock %d settled with %d binding(s) but balances for user(s) %s were not updated",
		e.StockID, len(e.SettledBindingIDs), strings.Join(ids, ","))
}

// invalid wraps a validation failure from another package into ErrInvalidInput.
func invalid(err error) error {
	if err == nil || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
