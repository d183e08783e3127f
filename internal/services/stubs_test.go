package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"copytrade/internal/models"
	"copytrade/internal/store"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memUsers keeps balances in memory and honours compare-and-swap.
// conflicts[id] forces that many lost races before a swap succeeds; a
// negative value loses every race.
type memUsers struct {
	mu        sync.Mutex
	users     map[int64]models.User
	conflicts map[int64]int
	swaps     int
}

func newMemUsers(users ...models.User) *memUsers {
	m := &memUsers{users: map[int64]models.User{}, conflicts: map[int64]int{}}
	for _, user := range users {
		m.users[user.ID] = user
	}
	return m
}

func (m *memUsers) balances(userID int64) models.Balances {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	return models.Balances{Balance: user.Balance, Available: user.AvailableBalance}
}

func (m *memUsers) GetByID(_ context.Context, userID int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memUsers) Exists(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memUsers) GetBalances(_ context.Context, _ store.Getter, userID int64) (models.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.Balances{}, sql.ErrNoRows
	}
	return models.Balances{Balance: user.Balance, Available: user.AvailableBalance}, nil
}

func (m *memUsers) CompareAndSwapBalances(_ context.Context, _ store.Execer, userID int64, prev, next models.Balances) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining := m.conflicts[userID]; remaining != 0 {
		if remaining > 0 {
			m.conflicts[userID] = remaining - 1
		}
		return false, nil
	}
	user := m.users[userID]
	if !user.Balance.Equal(prev.Balance) || !user.AvailableBalance.Equal(prev.Available) {
		return false, nil
	}
	user.Balance = next.Balance
	user.AvailableBalance = next.Available
	m.users[userID] = user
	m.swaps++
	return true, nil
}

func (m *memUsers) IncrementBalance(_ context.Context, _ store.Execer, userID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	user.Balance = user.Balance.Add(amount)
	user.AvailableBalance = user.AvailableBalance.Add(amount)
	m.users[userID] = user
	return nil
}

func (m *memUsers) DecrementBalance(_ context.Context, _ store.Getter, userID int64, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	if user.Balance.LessThan(amount) || user.AvailableBalance.LessThan(amount) {
		return false, nil
	}
	user.Balance = user.Balance.Sub(amount)
	user.AvailableBalance = user.AvailableBalance.Sub(amount)
	m.users[userID] = user
	return true, nil
}

func (m *memUsers) SetWalletAddress(_ context.Context, userID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.WalletAddress = &address
	m.users[userID] = user
	return nil
}

type creditKey struct {
	stockID int64
	userID  int64
}

type memCredits struct {
	mu       sync.Mutex
	nextID   int64
	credits  map[creditKey]*models.SettlementCredit
	failures map[creditKey]string
}

func newMemCredits() *memCredits {
	return &memCredits{credits: map[creditKey]*models.SettlementCredit{}, failures: map[creditKey]string{}}
}

func (m *memCredits) Insert(_ context.Context, _ store.Execer, stockID int64, input store.CreditInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.credits[creditKey{stockID, input.UserID}] = &models.SettlementCredit{
		ID: m.nextID, StockID: stockID, UserID: input.UserID, Unfreeze: input.Unfreeze, Profit: input.Profit,
	}
	return nil
}

func (m *memCredits) ListUnapplied(_ context.Context, stockID int64) ([]models.SettlementCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SettlementCredit{}
	for key, credit := range m.credits {
		if key.stockID == stockID && credit.AppliedAt == nil {
			out = append(out, *credit)
		}
	}
	return out, nil
}

func (m *memCredits) GetUnapplied(_ context.Context, _ store.Getter, stockID, userID int64) (models.SettlementCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credit, ok := m.credits[creditKey{stockID, userID}]
	if !ok || credit.AppliedAt != nil {
		return models.SettlementCredit{}, sql.ErrNoRows
	}
	return *credit, nil
}

func (m *memCredits) MarkApplied(_ context.Context, _ store.Execer, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, credit := range m.credits {
		if credit.ID == id && credit.AppliedAt == nil {
			now := testNow
			credit.AppliedAt = &now
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memCredits) RecordFailure(_ context.Context, stockID, userID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[creditKey{stockID, userID}] = message
	return nil
}

func (m *memCredits) unapplied(stockID int64) int {
	credits, _ := m.ListUnapplied(context.Background(), stockID)
	return len(credits)
}

type stubStockStore struct {
	getByIDFn      func(ctx context.Context, id int64) (models.Stock, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, id int64) (models.Stock, error)
	transitionFn   func(ctx context.Context, tx store.Execer, id int64, from, to models.StockStatus) (int64, error)
}

func (s stubStockStore) GetByID(ctx context.Context, id int64) (models.Stock, error) {
	return s.getByIDFn(ctx, id)
}

func (s stubStockStore) GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Stock, error) {
	if s.getForUpdateFn == nil {
		return s.getByIDFn(ctx, id)
	}
	return s.getForUpdateFn(ctx, tx, id)
}

func (s stubStockStore) Transition(ctx context.Context, tx store.Execer, id int64, from, to models.StockStatus) (int64, error) {
	if s.transitionFn == nil {
		return 1, nil
	}
	return s.transitionFn(ctx, tx, id, from, to)
}

// memStocks is a stock table whose status transitions are guarded like the SQL.
type memStocks struct {
	mu     sync.Mutex
	stocks map[int64]models.Stock
}

func newMemStocks(stocks ...models.Stock) *memStocks {
	m := &memStocks{stocks: map[int64]models.Stock{}}
	for _, stock := range stocks {
		m.stocks[stock.ID] = stock
	}
	return m
}

func (m *memStocks) GetByID(_ context.Context, id int64) (models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock, ok := m.stocks[id]
	if !ok {
		return models.Stock{}, sql.ErrNoRows
	}
	return stock, nil
}

func (m *memStocks) GetForUpdate(ctx context.Context, _ store.Getter, id int64) (models.Stock, error) {
	return m.GetByID(ctx, id)
}

func (m *memStocks) Transition(_ context.Context, _ store.Execer, id int64, from, to models.StockStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock, ok := m.stocks[id]
	if !ok || stock.Status != from {
		return 0, nil
	}
	stock.Status = to
	m.stocks[id] = stock
	return 1, nil
}

// memBindings mirrors copytrade_details with the same guards as the SQL.
type memBindings struct {
	mu       sync.Mutex
	nextID   int64
	bindings map[int64]models.CopyTradeBinding
}

func newMemBindings(bindings ...models.CopyTradeBinding) *memBindings {
	m := &memBindings{bindings: map[int64]models.CopyTradeBinding{}}
	for _, binding := range bindings {
		m.bindings[binding.ID] = binding
		if binding.ID > m.nextID {
			m.nextID = binding.ID
		}
	}
	return m
}

func (m *memBindings) get(id int64) models.CopyTradeBinding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[id]
}

func (m *memBindings) Create(_ context.Context, _ store.Getter, input store.NewBinding) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.bindings[m.nextID] = models.CopyTradeBinding{
		ID: m.nextID, UserID: input.UserID, MentorID: input.MentorID, Amount: input.Amount,
		MentorCommission: input.MentorCommission, Status: models.BindingPending,
	}
	return m.nextID, nil
}

func (m *memBindings) GetForUpdate(_ context.Context, _ store.Getter, id int64) (models.CopyTradeBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding, ok := m.bindings[id]
	if !ok {
		return models.CopyTradeBinding{}, sql.ErrNoRows
	}
	return binding, nil
}

func (m *memBindings) Transition(_ context.Context, _ store.Execer, id int64, from, to models.BindingStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding, ok := m.bindings[id]
	if !ok || binding.Status != from || binding.StockID != nil {
		return 0, nil
	}
	binding.Status = to
	m.bindings[id] = binding
	return 1, nil
}

func (m *memBindings) ClaimForStock(_ context.Context, _ store.Selecter, mentorID, stockID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int64{}
	for id, binding := range m.bindings {
		if binding.MentorID == mentorID && binding.Status == models.BindingApproved && binding.StockID == nil {
			sid := stockID
			binding.StockID = &sid
			m.bindings[id] = binding
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (m *memBindings) bound(stockID int64, status models.BindingStatus) []models.CopyTradeBinding {
	out := []models.CopyTradeBinding{}
	for _, binding := range m.bindings {
		if binding.StockID != nil && *binding.StockID == stockID && binding.Status == status {
			out = append(out, binding)
		}
	}
	return out
}

func (m *memBindings) LockBound(_ context.Context, _ store.Selecter, stockID int64) ([]models.CopyTradeBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound(stockID, models.BindingApproved), nil
}

func (m *memBindings) ListBound(ctx context.Context, stockID int64) ([]models.CopyTradeBinding, error) {
	return m.LockBound(ctx, nil, stockID)
}

func (m *memBindings) SettledIDs(_ context.Context, stockID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int64{}
	for _, binding := range m.bound(stockID, models.BindingSettled) {
		ids = append(ids, binding.ID)
	}
	sortIDs(ids)
	return ids, nil
}

func (m *memBindings) MarkSettled(_ context.Context, _ store.Execer, id int64, profit decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding, ok := m.bindings[id]
	if !ok || binding.Status != models.BindingApproved {
		return 0, nil
	}
	binding.Status = models.BindingSettled
	binding.OrderProfitAmount = decimal.NewNullDecimal(profit)
	m.bindings[id] = binding
	return 1, nil
}

type stubAuditStore struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (s *stubAuditStore) Log(_ context.Context, _ store.Execer, _ int64, action, _, _ string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return s.err
}

type stubHub struct {
	mu     sync.Mutex
	events map[int64][]websocket.Event
}

func newStubHub() *stubHub {
	return &stubHub{events: map[int64][]websocket.Event{}}
}

func (s *stubHub) Broadcast(userID int64, event websocket.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[userID] = append(s.events[userID], event)
}

func (s *stubHub) count(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[userID])
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func int64Ptr(value int64) *int64 {
	return &value
}
