package validator

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrInvalidAddress      = errors.New("invalid TRC-20 address")
)

var (
	phoneRegex        = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	referralCodeRegex = regexp.MustCompile(`^[A-Z0-9]{7}$`)
)

const (
	tronAddressLength = 34
	tronPrefix        = 0x41
)

func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// NormalizeReferralCode upper-cases and validates an invitation code.
func NormalizeReferralCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !referralCodeRegex.MatchString(normalized) {
		return "", ErrInvalidReferralCode
	}
	return normalized, nil
}

// ValidateTRC20Address checks a base58check TRON address: 21 payload bytes
// starting with 0x41 followed by a 4 byte double-SHA256 checksum.
func ValidateTRC20Address(address string) error {
	if len(address) != tronAddressLength || address[0] != 'T' {
		return ErrInvalidAddress
	}
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 25 {
		return ErrInvalidAddress
	}
	if decoded[0] != tronPrefix {
		return ErrInvalidAddress
	}
	first := sha256.Sum256(decoded[:21])
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], decoded[21:]) {
		return ErrInvalidAddress
	}
	return nil
}
