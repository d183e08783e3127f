package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"copytrade/internal/models"
	"copytrade/internal/referral"
	"copytrade/internal/services"
	"copytrade/internal/store"

	"github.com/shopspring/decimal"
)

func TestSubmitRechargeParsesAmount(t *testing.T) {
	var gotAmount decimal.Decimal
	var gotTx string
	deps := testDeps()
	deps.Funds = stubFundsService{
		submitRechargeFn: func(_ context.Context, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error) {
			if userID != 4 || channelID != 2 {
				t.Fatalf("unexpected ids: user=%d channel=%d", userID, channelID)
			}
			gotAmount, gotTx = amount, txID
			return 77, nil
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodPost, "/recharges", `{"channel_id":2,"amount":"150.25","tx_id":"0xabc"}`, 4)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotAmount.Equal(decimal.RequireFromString("150.25")) || gotTx != "0xabc" {
		t.Fatalf("unexpected recharge: %s %q", gotAmount, gotTx)
	}
}

func TestSubmitRechargeRejectsBadAmount(t *testing.T) {
	called := false
	deps := testDeps()
	deps.Funds = stubFundsService{
		submitRechargeFn: func(context.Context, int64, int64, decimal.Decimal, string) (int64, error) {
			called = true
			return 0, nil
		},
	}
	for _, amount := range []string{"", "-5", "abc", "0"} {
		rr := serve(t, newTestHandler(deps), http.MethodPost, "/recharges", `{"channel_id":2,"amount":"`+amount+`","tx_id":"x"}`, 4)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("amount %q: expected 400, got %d", amount, rr.Code)
		}
	}
	if called {
		t.Fatal("service must not be called for invalid amounts")
	}
}

func TestSubmitWithdrawMapsServiceErrors(t *testing.T) {
	cases := map[error]string{
		services.ErrWithdrawOutOfRange:  "withdraw_out_of_range",
		services.ErrWalletMissing:       "wallet_missing",
		services.ErrInsufficientBalance: "insufficient_balance",
	}
	for serviceErr, code := range cases {
		deps := testDeps()
		deps.Funds = stubFundsService{
			submitWithdrawFn: func(context.Context, int64, decimal.Decimal) (int64, error) {
				return 0, serviceErr
			},
		}
		rr := serve(t, newTestHandler(deps), http.MethodPost, "/withdraws", `{"amount":"150"}`, 4)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", code, rr.Code)
		}
		var payload map[string]string
		_ = json.NewDecoder(rr.Body).Decode(&payload)
		if payload["error"] != code {
			t.Fatalf("expected %q, got %q", code, payload["error"])
		}
	}
}

func TestBalanceReportsFrozenFunds(t *testing.T) {
	deps := testDeps()
	deps.Users = stubUserStore{
		getByIDFn: func(context.Context, int64) (models.User, error) {
			return models.User{Balance: decimal.NewFromInt(1000), AvailableBalance: decimal.NewFromInt(600)}, nil
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodGet, "/account/balance", "", 4)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["frozen"] != "400.00" {
		t.Fatalf("expected 400.00 frozen, got %v", payload)
	}
}

func TestListActiveChannelsFiltersInactive(t *testing.T) {
	var activeOnly bool
	deps := testDeps()
	deps.Channels = stubChannelStore{
		listFn: func(_ context.Context, only bool) ([]models.Channel, error) {
			activeOnly = only
			return []models.Channel{{ID: 1, Status: models.ChannelActive}}, nil
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodGet, "/channels", "", 4)
	if rr.Code != http.StatusOK || !activeOnly {
		t.Fatalf("expected active-only listing, got %d activeOnly=%v", rr.Code, activeOnly)
	}
}

func TestInviteStats(t *testing.T) {
	deps := testDeps()
	deps.Users = stubUserStore{
		getByIDFn: func(_ context.Context, id int64) (models.User, error) {
			return models.User{ID: id, ReferralCode: "ABC1234"}, nil
		},
	}
	deps.Referral = stubReferralService{
		statsFn: func(_ context.Context, userID int64) (referral.Stats, error) {
			return referral.Stats{Level1: 2, Level2: 1, Total: 3, Effective: 1}, nil
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodGet, "/invite/stats", "", 4)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		ReferralCode string         `json:"referral_code"`
		Stats        referral.Stats `json:"stats"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.ReferralCode != "ABC1234" || payload.Stats.Level1 != 2 || payload.Stats.Total != 3 {
		t.Fatalf("unexpected stats: %+v", payload)
	}
}

func TestFollowAndOrders(t *testing.T) {
	var statuses []models.BindingStatus
	deps := testDeps()
	deps.CopyTrade = stubCopyTradeService{
		followFn: func(_ context.Context, userID, mentorID int64, amount decimal.Decimal) (int64, error) {
			if mentorID != 3 || !amount.Equal(decimal.NewFromInt(400)) {
				t.Fatalf("unexpected follow: mentor=%d amount=%s", mentorID, amount)
			}
			return 12, nil
		},
	}
	deps.Bindings = stubBindingStore{
		listByUserFn: func(_ context.Context, _ int64, s []models.BindingStatus) ([]store.BindingView, error) {
			statuses = s
			return []store.BindingView{}, nil
		},
	}
	handler := newTestHandler(deps)

	rr := serve(t, handler, http.MethodPost, "/copytrade", `{"mentor_id":3,"amount":"400"}`, 4)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	rr = serve(t, handler, http.MethodGet, "/copytrade/active", "", 4)
	if rr.Code != http.StatusOK || len(statuses) != 2 || statuses[0] != models.BindingPending {
		t.Fatalf("unexpected active statuses: %v", statuses)
	}
	rr = serve(t, handler, http.MethodGet, "/copytrade/history", "", 4)
	if rr.Code != http.StatusOK || len(statuses) != 3 || statuses[0] != models.BindingSettled {
		t.Fatalf("unexpected history statuses: %v", statuses)
	}
}

func TestCancelOrder(t *testing.T) {
	deps := testDeps()
	deps.CopyTrade = stubCopyTradeService{
		cancelFn: func(_ context.Context, actorID, bindingID int64) error {
			if bindingID == 99 {
				return services.ErrInvalidState
			}
			return nil
		},
	}
	handler := newTestHandler(deps)
	if rr := serve(t, handler, http.MethodPost, "/copytrade/5/cancel", "", 4); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/copytrade/99/cancel", "", 4); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/copytrade/abc/cancel", "", 4); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
