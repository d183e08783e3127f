package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"copytrade/internal/models"
	"copytrade/internal/services"
	"copytrade/internal/settlement"
	"copytrade/internal/store"

	"github.com/shopspring/decimal"
)

func TestCreateStockChecksMentor(t *testing.T) {
	var input store.StockInput
	deps := testDeps()
	deps.Admin = roleAdmin(models.RoleManageStocks)
	deps.Mentors = stubMentorStore{
		getFn: func(_ context.Context, id int64) (models.Mentor, error) {
			if id != 3 {
				return models.Mentor{}, sql.ErrNoRows
			}
			return models.Mentor{ID: 3}, nil
		},
	}
	deps.Stocks = stubStockStore{
		createFn: func(_ context.Context, _ store.Getter, in store.StockInput) (int64, error) {
			input = in
			return 11, nil
		},
	}
	handler := newTestHandler(deps)

	rr := serve(t, handler, http.MethodPost, "/admin/stocks", `{"mentor_id":3,"crypto_name":"BTC","buy_price":"0.00012345","sell_price":"0"}`, 2)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if input.CryptoName != "BTC" || !input.BuyPrice.Equal(decimal.RequireFromString("0.00012345")) {
		t.Fatalf("unexpected stock input: %+v", input)
	}
	if rr := serve(t, handler, http.MethodPost, "/admin/stocks", `{"mentor_id":9,"crypto_name":"BTC","buy_price":"1","sell_price":"2"}`, 2); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown mentor, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/admin/stocks", `{"mentor_id":3,"crypto_name":"BTC","buy_price":"0","sell_price":"2"}`, 2); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero buy price, got %d", rr.Code)
	}
}

func TestEditingPublishedStockConflicts(t *testing.T) {
	deps := testDeps()
	deps.Admin = roleAdmin(models.RoleManageStocks)
	deps.Stocks = stubStockStore{
		getFn: func(_ context.Context, id int64) (models.Stock, error) {
			if id == 404 {
				return models.Stock{}, sql.ErrNoRows
			}
			return models.Stock{ID: id, Status: models.StockPublished}, nil
		},
	}
	handler := newTestHandler(deps)
	body := `{"mentor_id":3,"crypto_name":"BTC","buy_price":"1","sell_price":"2"}`
	if rr := serve(t, handler, http.MethodPut, "/admin/stocks/5", body, 2); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodDelete, "/admin/stocks/5", "", 2); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodDelete, "/admin/stocks/404", "", 2); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPublishNonPendingStockConflicts(t *testing.T) {
	deps := testDeps()
	deps.Admin = roleAdmin(models.RoleManageStocks)
	deps.Settlement = stubSettlementService{
		publishFn: func(_ context.Context, _, stockID int64) (services.PublishResult, error) {
			if stockID == 8 {
				return services.PublishResult{}, services.ErrInvalidState
			}
			return services.PublishResult{StockID: stockID, Status: models.StockPublished, ClaimedBindingIDs: []int64{1}}, nil
		},
	}
	handler := newTestHandler(deps)

	if rr := serve(t, handler, http.MethodPost, "/admin/stocks/7/publish", "", 2); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr := serve(t, handler, http.MethodPost, "/admin/stocks/8/publish", "", 2)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a published stock, got %d", rr.Code)
	}
	var payload map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&payload)
	if payload["error"] != "invalid_state" {
		t.Fatalf("unexpected error: %v", payload)
	}
}

func TestSettleStockPassesConfirmation(t *testing.T) {
	var got services.SettleRequest
	deps := testDeps()
	deps.Admin = roleAdmin(models.RoleSettle)
	deps.Settlement = stubSettlementService{
		settleFn: func(_ context.Context, req services.SettleRequest) (services.SettleResult, error) {
			got = req
			if !req.ConfirmLoss {
				return services.SettleResult{}, services.ErrLossNotConfirmed
			}
			return services.SettleResult{StockID: req.StockID, SettledBindingIDs: []int64{1, 2}}, nil
		},
	}
	handler := newTestHandler(deps)

	rr := serve(t, handler, http.MethodPost, "/admin/stocks/7/settle", "", 2)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirmation, got %d", rr.Code)
	}
	var payload map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&payload)
	if payload["error"] != "loss_confirmation_required" {
		t.Fatalf("unexpected error: %v", payload)
	}

	rr = serve(t, handler, http.MethodPost, "/admin/stocks/7/settle", `{"confirm_loss":true}`, 2)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.ActorID != 2 || got.StockID != 7 {
		t.Fatalf("unexpected settle request: %+v", got)
	}
}

func TestSettlePartialFailureIsMultiStatus(t *testing.T) {
	deps := testDeps()
	deps.Admin = superAdmin()
	deps.Settlement = stubSettlementService{
		settleFn: func(_ context.Context, req services.SettleRequest) (services.SettleResult, error) {
			return services.SettleResult{}, &services.PartialFailureError{
				StockID:           req.StockID,
				SettledBindingIDs: []int64{1, 2, 3},
				FailedUserIDs:     []int64{9},
			}
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodPost, "/admin/stocks/7/settle", `{"confirm_loss":true}`, 1)
	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rr.Code)
	}
	var payload struct {
		Error         string  `json:"error"`
		FailedUserIDs []int64 `json:"failed_user_ids"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Error != "partial_failure" || len(payload.FailedUserIDs) != 1 || payload.FailedUserIDs[0] != 9 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRetrySettlementUser(t *testing.T) {
	deps := testDeps()
	deps.Admin = superAdmin()
	deps.Settlement = stubSettlementService{
		retryFn: func(_ context.Context, _ int64, stockID, userID int64) (services.SettleResult, error) {
			if userID == 404 {
				return services.SettleResult{}, services.ErrNotFound
			}
			return services.SettleResult{StockID: stockID, AppliedUserIDs: []int64{userID}}, nil
		},
	}
	handler := newTestHandler(deps)
	if rr := serve(t, handler, http.MethodPost, "/admin/stocks/7/users/9/retry", "", 1); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/admin/stocks/7/users/404/retry", "", 1); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/admin/stocks/7/users/x/retry", "", 1); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPreviewSettlement(t *testing.T) {
	deps := testDeps()
	deps.Admin = superAdmin()
	deps.Settlement = stubSettlementService{
		previewFn: func(_ context.Context, stockID int64) (settlement.Plan, error) {
			return settlement.Plan{
				Position:    settlement.Position{StockID: stockID},
				TotalProfit: decimal.RequireFromString("12.5"),
			}, nil
		},
	}
	rr := serve(t, newTestHandler(deps), http.MethodGet, "/admin/stocks/7/preview", "", 1)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Position struct {
			StockID int64 `json:"stock_id"`
		} `json:"position"`
		TotalProfit string `json:"total_profit"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Position.StockID != 7 || payload.TotalProfit != "12.5" {
		t.Fatalf("unexpected preview: %+v", payload)
	}
}

func TestPreviewSettlementForOneUser(t *testing.T) {
	deps := testDeps()
	deps.Admin = superAdmin()
	deps.Settlement = stubSettlementService{
		previewFn: func(_ context.Context, stockID int64) (settlement.Plan, error) {
			return settlement.Plan{
				Deltas: []settlement.UserDelta{{
					UserID:   5,
					Unfreeze: decimal.NewFromInt(1000),
					Profit:   decimal.RequireFromString("-18"),
				}},
			}, nil
		},
	}
	handler := newTestHandler(deps)
	rr := serve(t, handler, http.MethodGet, "/admin/stocks/7/preview?user_id=5", "", 1)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var delta struct {
		UserID int64  `json:"user_id"`
		Profit string `json:"profit"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&delta); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if delta.UserID != 5 || delta.Profit != "-18" {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if rr := serve(t, handler, http.MethodGet, "/admin/stocks/7/preview?user_id=6", "", 1); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodGet, "/admin/stocks/7/preview?user_id=abc", "", 1); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListStocksValidatesStatus(t *testing.T) {
	deps := testDeps()
	deps.Admin = superAdmin()
	handler := newTestHandler(deps)
	if rr := serve(t, handler, http.MethodGet, "/admin/stocks?status=published", "", 1); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodGet, "/admin/stocks?status=weird", "", 1); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
