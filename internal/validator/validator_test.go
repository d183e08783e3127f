package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("9876543210"))
	assert.NoError(t, ValidatePhone("+919876543210"))
	assert.ErrorIs(t, ValidatePhone("987654321"), ErrInvalidPhone)
	assert.ErrorIs(t, ValidatePhone("98765-43210"), ErrInvalidPhone)
	assert.ErrorIs(t, ValidatePhone(""), ErrInvalidPhone)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("12345678"))
	assert.ErrorIs(t, ValidatePassword("1234567"), ErrInvalidPassword)
}

func TestNormalizeReferralCode(t *testing.T) {
	code, err := NormalizeReferralCode(" ab12cd3 ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD3", code)

	_, err = NormalizeReferralCode("AB12CD")
	assert.ErrorIs(t, err, ErrInvalidReferralCode)
	_, err = NormalizeReferralCode("AB-2CD3")
	assert.ErrorIs(t, err, ErrInvalidReferralCode)
}

func TestValidateTRC20Address(t *testing.T) {
	assert.NoError(t, ValidateTRC20Address("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))

	cases := map[string]string{
		"bad checksum": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u",
		"too short":    "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6",
		"wrong prefix": "XR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
		"not base58":   "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj60",
		"empty":        "",
	}
	for name, address := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateTRC20Address(address), ErrInvalidAddress)
		})
	}
}
