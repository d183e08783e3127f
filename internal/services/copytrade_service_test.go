package services

import (
	"context"
	"database/sql"
	"testing"

	"copytrade/internal/models"
	"copytrade/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMentorStore struct {
	mentors map[int64]models.Mentor
}

func (s stubMentorStore) GetByID(_ context.Context, id int64) (models.Mentor, error) {
	mentor, ok := s.mentors[id]
	if !ok {
		return models.Mentor{}, sql.ErrNoRows
	}
	return mentor, nil
}

type copyTradeFixture struct {
	service  *CopyTradeService
	users    *memUsers
	bindings *memBindings
	audit    *stubAuditStore
	hub      *stubHub
}

func newCopyTradeFixture(bindings ...models.CopyTradeBinding) copyTradeFixture {
	f := copyTradeFixture{
		users: newMemUsers(models.User{
			ID: 7, Balance: dec("1000"), AvailableBalance: dec("1000"),
		}),
		bindings: newMemBindings(bindings...),
		audit:    &stubAuditStore{},
		hub:      newStubHub(),
	}
	mentors := stubMentorStore{mentors: map[int64]models.Mentor{
		3: {ID: 3, Name: "Asha", Commission: dec("10")},
	}}
	f.service = NewCopyTradeService(fakeTxRunner{}, f.bindings, mentors, f.users, f.audit, f.hub, 5)
	return f
}

func TestFollowSnapshotsCommission(t *testing.T) {
	f := newCopyTradeFixture()

	id, err := f.service.Follow(context.Background(), 7, 3, dec("250"))
	require.NoError(t, err)
	binding := f.bindings.get(id)
	assert.Equal(t, models.BindingPending, binding.Status)
	assert.True(t, binding.MentorCommission.Equal(dec("10")), "commission snapshot: %s", binding.MentorCommission)
	assertBalances(t, f.users, 7, "1000", "1000")
	require.Equal(t, 1, f.hub.count(7))
	assert.Equal(t, websocket.EventOrder, f.hub.events[7][0].Type)
}

func TestFollowRejectsBadRequests(t *testing.T) {
	f := newCopyTradeFixture()
	ctx := context.Background()

	cases := []struct {
		name     string
		mentorID int64
		amount   decimal.Decimal
		want     error
	}{
		{"zero amount", 3, decimal.Zero, ErrInvalidInput},
		{"negative amount", 3, dec("-5"), ErrInvalidInput},
		{"unknown mentor", 99, dec("10"), ErrNotFound},
		{"over available", 3, dec("1000.01"), ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Follow(ctx, 7, tc.mentorID, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestApproveFreezesAvailable(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("400"), Status: models.BindingPending,
	})

	require.NoError(t, f.service.Approve(context.Background(), 1, 1))
	assertBalances(t, f.users, 7, "1000", "600")
	assert.Equal(t, models.BindingApproved, f.bindings.get(1).Status)
	assert.Equal(t, []string{"approve_copytrade"}, f.audit.actions)
	assert.Equal(t, 2, f.hub.count(7), "expected order and balance events")
}

func TestApproveRetriesLostRace(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("400"), Status: models.BindingPending,
	})
	f.users.conflicts[7] = 2

	require.NoError(t, f.service.Approve(context.Background(), 1, 1))
	assertBalances(t, f.users, 7, "1000", "600")
	assert.Equal(t, 1, f.users.swaps)
}

func TestApproveInsufficientAvailable(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("1500"), Status: models.BindingPending,
	})

	err := f.service.Approve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, models.BindingPending, f.bindings.get(1).Status)
}

func TestApproveTwiceIsInvalidState(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("100"), Status: models.BindingPending,
	})
	ctx := context.Background()

	require.NoError(t, f.service.Approve(ctx, 1, 1))
	assert.ErrorIs(t, f.service.Approve(ctx, 1, 1), ErrInvalidState)
	assertBalances(t, f.users, 7, "1000", "900")
	assert.ErrorIs(t, f.service.Approve(ctx, 1, 42), ErrNotFound)
}

func TestRejectLeavesBalances(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("100"), Status: models.BindingPending,
	})

	require.NoError(t, f.service.Reject(context.Background(), 1, 1))
	assert.Equal(t, models.BindingRejected, f.bindings.get(1).Status)
	assertBalances(t, f.users, 7, "1000", "1000")
}

func TestCancelReleasesUnclaimedBinding(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("400"), Status: models.BindingPending,
	})
	ctx := context.Background()

	require.NoError(t, f.service.Approve(ctx, 1, 1))
	require.NoError(t, f.service.Cancel(ctx, 7, 1))
	assertBalances(t, f.users, 7, "1000", "1000")
	assert.Equal(t, models.BindingCancelled, f.bindings.get(1).Status)
}

func TestCancelClaimedBindingIsInvalidState(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("400"), Status: models.BindingApproved, StockID: int64Ptr(11),
	})

	assert.ErrorIs(t, f.service.Cancel(context.Background(), 7, 1), ErrInvalidState)
}

func TestCancelSomeoneElsesBinding(t *testing.T) {
	f := newCopyTradeFixture(models.CopyTradeBinding{
		ID: 1, UserID: 7, MentorID: 3, Amount: dec("400"), Status: models.BindingApproved,
	})

	assert.ErrorIs(t, f.service.Cancel(context.Background(), 8, 1), ErrNotFound)
	assert.Equal(t, models.BindingApproved, f.bindings.get(1).Status)
}
