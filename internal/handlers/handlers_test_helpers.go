package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"copytrade/internal/auth"
	"copytrade/internal/config"
	"copytrade/internal/models"
	"copytrade/internal/referral"
	"copytrade/internal/services"
	"copytrade/internal/settlement"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	getByIDFn    func(ctx context.Context, userID int64) (models.User, error)
	getByPhoneFn func(ctx context.Context, phone string) (models.User, error)
	listFn       func(ctx context.Context, search string, limit, offset int) ([]store.UserSummary, error)
}

func (s stubUserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	if s.getByPhoneFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByPhoneFn(ctx, phone)
}

func (s stubUserStore) List(ctx context.Context, search string, limit, offset int) ([]store.UserSummary, error) {
	if s.listFn == nil {
		return []store.UserSummary{}, nil
	}
	return s.listFn(ctx, search, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID int64) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID int64, role string) (bool, error)
	rolesFn       func(ctx context.Context, userID int64) ([]string, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID int64, isSuper bool, createdBy *int64) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID int64, role string) error
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID int64) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) Roles(ctx context.Context, userID int64) ([]string, error) {
	if s.rolesFn == nil {
		return []string{}, nil
	}
	return s.rolesFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID int64, isSuper bool, createdBy *int64) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID int64, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

type auditCall struct {
	ActorID    int64
	Action     string
	EntityType string
	EntityID   string
}

type recordingAudit struct {
	calls  *[]auditCall
	listFn func(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

func (s recordingAudit) Log(_ context.Context, _ store.Execer, actorID int64, action, entityType, entityID string, _ any) error {
	if s.calls != nil {
		*s.calls = append(*s.calls, auditCall{ActorID: actorID, Action: action, EntityType: entityType, EntityID: entityID})
	}
	return nil
}

func (s recordingAudit) List(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.listFn(ctx, entityType, limit, offset)
}

type stubMentorStore struct {
	createFn func(ctx context.Context, tx store.Getter, input store.MentorInput) (int64, error)
	updateFn func(ctx context.Context, tx store.Execer, id int64, input store.MentorInput) (int64, error)
	deleteFn func(ctx context.Context, tx store.Execer, id int64) (int64, error)
	getFn    func(ctx context.Context, id int64) (models.Mentor, error)
	listFn   func(ctx context.Context) ([]models.Mentor, error)
}

func (s stubMentorStore) Create(ctx context.Context, tx store.Getter, input store.MentorInput) (int64, error) {
	if s.createFn == nil {
		return 1, nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubMentorStore) Update(ctx context.Context, tx store.Execer, id int64, input store.MentorInput) (int64, error) {
	if s.updateFn == nil {
		return 1, nil
	}
	return s.updateFn(ctx, tx, id, input)
}

func (s stubMentorStore) Delete(ctx context.Context, tx store.Execer, id int64) (int64, error) {
	if s.deleteFn == nil {
		return 1, nil
	}
	return s.deleteFn(ctx, tx, id)
}

func (s stubMentorStore) GetByID(ctx context.Context, id int64) (models.Mentor, error) {
	if s.getFn == nil {
		return models.Mentor{ID: id}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubMentorStore) List(ctx context.Context) ([]models.Mentor, error) {
	if s.listFn == nil {
		return []models.Mentor{}, nil
	}
	return s.listFn(ctx)
}

type stubStockStore struct {
	createFn func(ctx context.Context, tx store.Getter, input store.StockInput) (int64, error)
	updateFn func(ctx context.Context, tx store.Execer, id int64, input store.StockInput) (int64, error)
	deleteFn func(ctx context.Context, tx store.Execer, id int64) (int64, error)
	getFn    func(ctx context.Context, id int64) (models.Stock, error)
	listFn   func(ctx context.Context, status string, limit, offset int) ([]store.StockOverview, error)
}

func (s stubStockStore) Create(ctx context.Context, tx store.Getter, input store.StockInput) (int64, error) {
	if s.createFn == nil {
		return 1, nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubStockStore) UpdatePending(ctx context.Context, tx store.Execer, id int64, input store.StockInput) (int64, error) {
	if s.updateFn == nil {
		return 1, nil
	}
	return s.updateFn(ctx, tx, id, input)
}

func (s stubStockStore) DeletePending(ctx context.Context, tx store.Execer, id int64) (int64, error) {
	if s.deleteFn == nil {
		return 1, nil
	}
	return s.deleteFn(ctx, tx, id)
}

func (s stubStockStore) GetByID(ctx context.Context, id int64) (models.Stock, error) {
	if s.getFn == nil {
		return models.Stock{ID: id, Status: models.StockPending}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubStockStore) List(ctx context.Context, status string, limit, offset int) ([]store.StockOverview, error) {
	if s.listFn == nil {
		return []store.StockOverview{}, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

type stubBindingStore struct {
	listByUserFn func(ctx context.Context, userID int64, statuses []models.BindingStatus) ([]store.BindingView, error)
	listAllFn    func(ctx context.Context, status string, limit, offset int) ([]store.BindingView, error)
}

func (s stubBindingStore) ListByUser(ctx context.Context, userID int64, statuses []models.BindingStatus) ([]store.BindingView, error) {
	if s.listByUserFn == nil {
		return []store.BindingView{}, nil
	}
	return s.listByUserFn(ctx, userID, statuses)
}

func (s stubBindingStore) ListAll(ctx context.Context, status string, limit, offset int) ([]store.BindingView, error) {
	if s.listAllFn == nil {
		return []store.BindingView{}, nil
	}
	return s.listAllFn(ctx, status, limit, offset)
}

type stubRechargeStore struct {
	listAllFn func(ctx context.Context, status string, limit, offset int) ([]store.RechargeView, error)
}

func (s stubRechargeStore) ListByUser(context.Context, int64, int, int) ([]store.RechargeView, error) {
	return []store.RechargeView{}, nil
}

func (s stubRechargeStore) ListAll(ctx context.Context, status string, limit, offset int) ([]store.RechargeView, error) {
	if s.listAllFn == nil {
		return []store.RechargeView{}, nil
	}
	return s.listAllFn(ctx, status, limit, offset)
}

type stubWithdrawStore struct{}

func (stubWithdrawStore) ListByUser(context.Context, int64, int, int) ([]store.WithdrawView, error) {
	return []store.WithdrawView{}, nil
}

func (stubWithdrawStore) ListAll(context.Context, string, int, int) ([]store.WithdrawView, error) {
	return []store.WithdrawView{}, nil
}

type stubChannelStore struct {
	createFn func(ctx context.Context, tx store.Getter, input store.ChannelInput) (int64, error)
	updateFn func(ctx context.Context, tx store.Execer, id int64, input store.ChannelInput) (int64, error)
	deleteFn func(ctx context.Context, tx store.Execer, id int64) (int64, error)
	getFn    func(ctx context.Context, id int64) (models.Channel, error)
	listFn   func(ctx context.Context, activeOnly bool) ([]models.Channel, error)
}

func (s stubChannelStore) GetByID(ctx context.Context, id int64) (models.Channel, error) {
	if s.getFn == nil {
		return models.Channel{ID: id, Status: models.ChannelActive}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubChannelStore) Create(ctx context.Context, tx store.Getter, input store.ChannelInput) (int64, error) {
	if s.createFn == nil {
		return 1, nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubChannelStore) Update(ctx context.Context, tx store.Execer, id int64, input store.ChannelInput) (int64, error) {
	if s.updateFn == nil {
		return 1, nil
	}
	return s.updateFn(ctx, tx, id, input)
}

func (s stubChannelStore) Delete(ctx context.Context, tx store.Execer, id int64) (int64, error) {
	if s.deleteFn == nil {
		return 1, nil
	}
	return s.deleteFn(ctx, tx, id)
}

func (s stubChannelStore) List(ctx context.Context, activeOnly bool) ([]models.Channel, error) {
	if s.listFn == nil {
		return []models.Channel{}, nil
	}
	return s.listFn(ctx, activeOnly)
}

type stubCreditStore struct {
	listFn func(ctx context.Context, stockID int64) ([]models.SettlementCredit, error)
}

func (s stubCreditStore) ListByStock(ctx context.Context, stockID int64) ([]models.SettlementCredit, error) {
	if s.listFn == nil {
		return []models.SettlementCredit{}, nil
	}
	return s.listFn(ctx, stockID)
}

type stubAccountService struct {
	registerFn func(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error)
	loginFn    func(ctx context.Context, phone, password, ip string) (models.User, error)
}

func (s stubAccountService) Register(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error) {
	if s.registerFn == nil {
		return services.RegisterResult{}, nil
	}
	return s.registerFn(ctx, req)
}

func (s stubAccountService) Login(ctx context.Context, phone, password, ip string) (models.User, error) {
	if s.loginFn == nil {
		return models.User{}, services.ErrInvalidCredentials
	}
	return s.loginFn(ctx, phone, password, ip)
}

type stubSettlementService struct {
	publishFn func(ctx context.Context, actorID, stockID int64) (services.PublishResult, error)
	settleFn  func(ctx context.Context, req services.SettleRequest) (services.SettleResult, error)
	resumeFn  func(ctx context.Context, actorID, stockID int64) (services.SettleResult, error)
	retryFn   func(ctx context.Context, actorID, stockID, userID int64) (services.SettleResult, error)
	previewFn func(ctx context.Context, stockID int64) (settlement.Plan, error)
}

func (s stubSettlementService) Publish(ctx context.Context, actorID, stockID int64) (services.PublishResult, error) {
	if s.publishFn == nil {
		return services.PublishResult{StockID: stockID, Status: models.StockPublished}, nil
	}
	return s.publishFn(ctx, actorID, stockID)
}

func (s stubSettlementService) Settle(ctx context.Context, req services.SettleRequest) (services.SettleResult, error) {
	if s.settleFn == nil {
		return services.SettleResult{StockID: req.StockID}, nil
	}
	return s.settleFn(ctx, req)
}

func (s stubSettlementService) Resume(ctx context.Context, actorID, stockID int64) (services.SettleResult, error) {
	if s.resumeFn == nil {
		return services.SettleResult{StockID: stockID, Resumed: true}, nil
	}
	return s.resumeFn(ctx, actorID, stockID)
}

func (s stubSettlementService) RetryUser(ctx context.Context, actorID, stockID, userID int64) (services.SettleResult, error) {
	if s.retryFn == nil {
		return services.SettleResult{StockID: stockID, AppliedUserIDs: []int64{userID}}, nil
	}
	return s.retryFn(ctx, actorID, stockID, userID)
}

func (s stubSettlementService) Preview(ctx context.Context, stockID int64) (settlement.Plan, error) {
	if s.previewFn == nil {
		return settlement.Plan{}, nil
	}
	return s.previewFn(ctx, stockID)
}

type stubCopyTradeService struct {
	followFn  func(ctx context.Context, userID, mentorID int64, amount decimal.Decimal) (int64, error)
	approveFn func(ctx context.Context, actorID, bindingID int64) error
	rejectFn  func(ctx context.Context, actorID, bindingID int64) error
	cancelFn  func(ctx context.Context, actorID, bindingID int64) error
}

func (s stubCopyTradeService) Follow(ctx context.Context, userID, mentorID int64, amount decimal.Decimal) (int64, error) {
	if s.followFn == nil {
		return 1, nil
	}
	return s.followFn(ctx, userID, mentorID, amount)
}

func (s stubCopyTradeService) Approve(ctx context.Context, actorID, bindingID int64) error {
	if s.approveFn == nil {
		return nil
	}
	return s.approveFn(ctx, actorID, bindingID)
}

func (s stubCopyTradeService) Reject(ctx context.Context, actorID, bindingID int64) error {
	if s.rejectFn == nil {
		return nil
	}
	return s.rejectFn(ctx, actorID, bindingID)
}

func (s stubCopyTradeService) Cancel(ctx context.Context, actorID, bindingID int64) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, actorID, bindingID)
}

type stubFundsService struct {
	submitRechargeFn  func(ctx context.Context, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error)
	approveRechargeFn func(ctx context.Context, actorID, id int64) error
	submitWithdrawFn  func(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error)
	approveWithdrawFn func(ctx context.Context, actorID, id int64) error
	setWalletFn       func(ctx context.Context, userID int64, address string) error
}

func (s stubFundsService) SubmitRecharge(ctx context.Context, userID, channelID int64, amount decimal.Decimal, txID string) (int64, error) {
	if s.submitRechargeFn == nil {
		return 1, nil
	}
	return s.submitRechargeFn(ctx, userID, channelID, amount, txID)
}

func (s stubFundsService) ApproveRecharge(ctx context.Context, actorID, id int64) error {
	if s.approveRechargeFn == nil {
		return nil
	}
	return s.approveRechargeFn(ctx, actorID, id)
}

func (s stubFundsService) RejectRecharge(context.Context, int64, int64) error { return nil }

func (s stubFundsService) SubmitWithdraw(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	if s.submitWithdrawFn == nil {
		return 1, nil
	}
	return s.submitWithdrawFn(ctx, userID, amount)
}

func (s stubFundsService) ApproveWithdraw(ctx context.Context, actorID, id int64) error {
	if s.approveWithdrawFn == nil {
		return nil
	}
	return s.approveWithdrawFn(ctx, actorID, id)
}

func (s stubFundsService) RejectWithdraw(context.Context, int64, int64) error { return nil }

func (s stubFundsService) SetWalletAddress(ctx context.Context, userID int64, address string) error {
	if s.setWalletFn == nil {
		return nil
	}
	return s.setWalletFn(ctx, userID, address)
}

type stubReferralService struct {
	statsFn func(ctx context.Context, userID int64) (referral.Stats, error)
}

func (s stubReferralService) Stats(ctx context.Context, userID int64) (referral.Stats, error) {
	if s.statsFn == nil {
		return referral.Stats{}, nil
	}
	return s.statsFn(ctx, userID)
}

// testDeps returns a Deps with every collaborator stubbed; tests override the
// fields they care about.
func testDeps() Deps {
	return Deps{
		TxRunner:   fakeTxRunner{},
		Users:      stubUserStore{},
		Admin:      stubAdminStore{},
		Audit:      recordingAudit{},
		Mentors:    stubMentorStore{},
		Stocks:     stubStockStore{},
		Bindings:   stubBindingStore{},
		Recharges:  stubRechargeStore{},
		Withdraws:  stubWithdrawStore{},
		Channels:   stubChannelStore{},
		Credits:    stubCreditStore{},
		Accounts:   stubAccountService{},
		Settlement: stubSettlementService{},
		CopyTrade:  stubCopyTradeService{},
		Funds:      stubFundsService{},
		Referral:   stubReferralService{},
		Hub:        websocket.NewHub(),
	}
}

func newTestHandler(deps Deps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		AuthRateLimit:  "1000-M",
	}
	return New(cfg, deps)
}

// serve sends a request through the full router, authenticated as userID
// when it is positive.
func serve(t *testing.T, h *Handler, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func superAdmin() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, int64) (bool, bool, error) { return true, true, nil },
	}
}

// roleAdmin is a plain admin holding only the listed roles.
func roleAdmin(roles ...string) stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, int64) (bool, bool, error) { return true, false, nil },
		hasRoleFn: func(_ context.Context, _ int64, role string) (bool, error) {
			for _, r := range roles {
				if r == role {
					return true, nil
				}
			}
			return false, nil
		},
		rolesFn: func(context.Context, int64) ([]string, error) { return roles, nil },
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
