package settlement

import (
	"testing"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestCalculateProfitableSettlement(t *testing.T) {
	plan, err := Calculate(
		Position{StockID: 1, BuyPrice: d("100"), SellPrice: d("110")},
		[]Binding{{ID: 7, UserID: 3, Amount: d("1000"), MentorCommission: d("10")}},
	)
	require.NoError(t, err)
	require.Len(t, plan.Outcomes, 1)

	outcome := plan.Outcomes[0]
	assertDecimal(t, "10", outcome.AssetUnits)
	assertDecimal(t, "100", outcome.GrossProfit)
	assertDecimal(t, "90", outcome.UserProfit)

	require.Len(t, plan.Deltas, 1)
	after := plan.Deltas[0].Apply(models.Balances{Balance: d("5000"), Available: d("4000")})
	assertDecimal(t, "5090", after.Balance)
	assertDecimal(t, "5090", after.Available)
}

func TestCalculateLossAppliesCommissionSymmetrically(t *testing.T) {
	plan, err := Calculate(
		Position{BuyPrice: d("50"), SellPrice: d("40")},
		[]Binding{{ID: 1, UserID: 9, Amount: d("500"), MentorCommission: d("20")}},
	)
	require.NoError(t, err)
	assertDecimal(t, "-80", plan.Outcomes[0].UserProfit)
	assertDecimal(t, "-100", plan.Outcomes[0].GrossProfit)

	after := plan.Deltas[0].Apply(models.Balances{Balance: d("500"), Available: d("0")})
	assertDecimal(t, "420", after.Balance)
	assertDecimal(t, "420", after.Available)
}

func TestCalculateAggregatesPerUser(t *testing.T) {
	plan, err := Calculate(
		Position{BuyPrice: d("100"), SellPrice: d("120")},
		[]Binding{
			{ID: 1, UserID: 5, Amount: d("100"), MentorCommission: d("0")},
			{ID: 2, UserID: 2, Amount: d("200"), MentorCommission: d("50")},
			{ID: 3, UserID: 5, Amount: d("300"), MentorCommission: d("100")},
		},
	)
	require.NoError(t, err)
	require.Len(t, plan.Deltas, 2)

	assert.Equal(t, int64(2), plan.Deltas[0].UserID)
	assertDecimal(t, "200", plan.Deltas[0].Unfreeze)
	assertDecimal(t, "20", plan.Deltas[0].Profit)

	assert.Equal(t, int64(5), plan.Deltas[1].UserID)
	assertDecimal(t, "400", plan.Deltas[1].Unfreeze)
	assertDecimal(t, "20", plan.Deltas[1].Profit)

	assertDecimal(t, "600", plan.TotalReleased)
	assertDecimal(t, "40", plan.TotalProfit)
	assert.Equal(t, []int64{1, 2, 3}, plan.BindingIDs())

	delta, ok := plan.Delta(5)
	require.True(t, ok)
	assertDecimal(t, "400", delta.Unfreeze)
	_, ok = plan.Delta(99)
	assert.False(t, ok)
}

func TestCalculateRoundsOnceToScale(t *testing.T) {
	plan, err := Calculate(
		Position{BuyPrice: d("3"), SellPrice: d("4")},
		[]Binding{{ID: 1, UserID: 1, Amount: d("1"), MentorCommission: d("0")}},
	)
	require.NoError(t, err)
	assertDecimal(t, "0.33333333", plan.Outcomes[0].UserProfit)
	assertDecimal(t, "0.33333333", plan.Outcomes[0].AssetUnits)
}

func TestCalculateZeroBindings(t *testing.T) {
	plan, err := Calculate(Position{BuyPrice: d("1"), SellPrice: d("2")}, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Outcomes)
	assert.Empty(t, plan.Deltas)
	assert.True(t, plan.TotalProfit.IsZero())
	assert.True(t, plan.TotalReleased.IsZero())
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	valid := Binding{ID: 1, UserID: 1, Amount: d("10"), MentorCommission: d("10")}

	_, err := Calculate(Position{BuyPrice: d("0"), SellPrice: d("1")}, []Binding{valid})
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = Calculate(Position{BuyPrice: d("-5"), SellPrice: d("1")}, []Binding{valid})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	over := valid
	over.MentorCommission = d("100.01")
	_, err = Calculate(Position{BuyPrice: d("1"), SellPrice: d("2")}, []Binding{over})
	assert.ErrorIs(t, err, ErrInvalidCommission)

	negative := valid
	negative.MentorCommission = d("-1")
	_, err = Calculate(Position{BuyPrice: d("1"), SellPrice: d("2")}, []Binding{negative})
	assert.ErrorIs(t, err, ErrInvalidCommission)

	empty := valid
	empty.Amount = decimal.Zero
	_, err = Calculate(Position{BuyPrice: d("1"), SellPrice: d("2")}, []Binding{empty})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Calculate(Position{BuyPrice: d("1"), SellPrice: d("2")}, []Binding{valid, valid})
	assert.ErrorIs(t, err, ErrDuplicateBinding)
}

func TestCommissionBoundsAreInclusive(t *testing.T) {
	plan, err := Calculate(
		Position{BuyPrice: d("10"), SellPrice: d("20")},
		[]Binding{
			{ID: 1, UserID: 1, Amount: d("10"), MentorCommission: d("0")},
			{ID: 2, UserID: 2, Amount: d("10"), MentorCommission: d("100")},
		},
	)
	require.NoError(t, err)
	assertDecimal(t, "10", plan.Outcomes[0].UserProfit)
	assertDecimal(t, "0", plan.Outcomes[1].UserProfit)
}

func TestIsLossMaking(t *testing.T) {
	assert.True(t, Position{BuyPrice: d("10"), SellPrice: d("9")}.IsLossMaking())
	assert.True(t, Position{BuyPrice: d("10"), SellPrice: d("10")}.IsLossMaking())
	assert.False(t, Position{BuyPrice: d("10"), SellPrice: d("10.01")}.IsLossMaking())
}

func TestDeltasFromDifferentStocksCommute(t *testing.T) {
	first, err := Calculate(
		Position{BuyPrice: d("100"), SellPrice: d("110")},
		[]Binding{{ID: 1, UserID: 1, Amount: d("1000"), MentorCommission: d("10")}},
	)
	require.NoError(t, err)
	second, err := Calculate(
		Position{BuyPrice: d("50"), SellPrice: d("40")},
		[]Binding{{ID: 2, UserID: 1, Amount: d("500"), MentorCommission: d("20")}},
	)
	require.NoError(t, err)

	start := models.Balances{Balance: d("1500"), Available: d("0")}
	ab := second.Deltas[0].Apply(first.Deltas[0].Apply(start))
	ba := first.Deltas[0].Apply(second.Deltas[0].Apply(start))
	assert.True(t, ab.Balance.Equal(ba.Balance))
	assert.True(t, ab.Available.Equal(ba.Available))
	assertDecimal(t, "1510", ab.Balance)
	assertDecimal(t, "1510", ab.Available)
}
