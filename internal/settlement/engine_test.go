package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/database"
	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	mu     sync.Mutex
	events []models.DepositEvent
	err    error
	calls  int
}

func (f *fakeGateway) GetDepositHistory(ctx context.Context, start time.Time) ([]models.DepositEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Send(recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, recipient+": "+subject)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type engineFixture struct {
	engine  *Engine
	db      *database.Service
	gateway *fakeGateway
	sink    *recordingSink
	now     time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create database service: %v", err)
	}
	t.Cleanup(db.Close)

	gateway := &fakeGateway{}
	sink := &recordingSink{}
	fixture := &engineFixture{
		db:      db,
		gateway: gateway,
		sink:    sink,
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	fixture.engine = NewEngine(EngineConfig{
		Store:           db,
		Gateway:         gateway,
		Sink:            sink,
		Tables:          config.DefaultTables(),
		PollInterval:    2 * time.Minute,
		LookbackWindow:  10 * time.Minute,
		CleanupInterval: 15 * time.Minute,
		Asset:           "USDT",
		Network:         "TRX",
		OperatorEmail:   "ops@example.com",
	})
	fixture.engine.now = func() time.Time { return fixture.now }

	return fixture
}

func (f *engineFixture) createUser(t *testing.T, name, email, category, referredBy string) *models.User {
	t.Helper()

	ctx := context.Background()
	user, err := f.db.CreateUser(ctx, "", name, email, referredBy)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	if category != "" {
		if err := f.db.SetCategory(ctx, user.Id, category); err != nil {
			t.Fatalf("Failed to set category: %v", err)
		}
	}
	user, err = f.db.GetUserById(ctx, user.Id)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	return user
}

func (f *engineFixture) createIntent(t *testing.T, user *models.User, amount string) *models.DepositIntent {
	t.Helper()

	expected := decimal.RequireFromString(amount)
	intent, err := f.db.CreateIntent(context.Background(), store.CreateIntentParams{
		UserId:         user.Id,
		ExpectedAmount: expected,
		BaseAmount:     expected,
		Category:       user.Category,
		Network:        "TRX",
		CreatedAt:      f.now,
		ExpiresAt:      f.now.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Failed to create intent: %v", err)
	}
	return intent
}

func confirmedDeposit(txId, amount string) models.DepositEvent {
	return models.DepositEvent{
		TxId:    txId,
		Amount:  amount,
		Coin:    "USDT",
		Network: "TRX",
		Status:  models.DepositStatusConfirmed,
	}
}

func TestPoll_SettlesConfirmedDeposit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)

	settled, err := f.db.FindIntentByExternalTxId(ctx, "dep-1")
	if err != nil {
		t.Fatalf("Intent was not settled: %v", err)
	}
	if settled.Status != models.IntentStatusCompleted {
		t.Errorf("Expected status completed, got %s", settled.Status)
	}

	updated, err := f.db.GetUserById(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if !updated.Eligible {
		t.Error("Expected user to become eligible")
	}

	// Silver earns 25% of the base amount: 3.44 * 0.25 = 0.86.
	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	expected := decimal.RequireFromString("0.86")
	if !balance.Equal(expected) {
		t.Errorf("Expected reward balance %s, got %s", expected, balance)
	}

	if f.sink.count() == 0 {
		t.Error("Expected a settlement notification")
	}
}

func TestPoll_ReplayIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)
	f.engine.Poll(ctx)

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("0.86")) {
		t.Errorf("Expected balance 0.86 after replay, got %s", balance)
	}

	history, err := f.db.GetTransactionHistory(ctx, user.Id, "USDT", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected exactly 1 credit after replay, got %d", len(history))
	}
}

func TestPoll_ReplaySurvivesRestart(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)

	// A fresh engine has an empty dedup cache; the persisted external
	// tx id check must still stop a second settlement.
	restarted := NewEngine(EngineConfig{
		Store:           f.db,
		Gateway:         f.gateway,
		Sink:            f.sink,
		Tables:          config.DefaultTables(),
		PollInterval:    2 * time.Minute,
		LookbackWindow:  10 * time.Minute,
		CleanupInterval: 15 * time.Minute,
		Asset:           "USDT",
		Network:         "TRX",
	})
	restarted.now = func() time.Time { return f.now }
	restarted.Poll(ctx)

	history, err := f.db.GetTransactionHistory(ctx, user.Id, "USDT", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected exactly 1 credit across restarts, got %d", len(history))
	}
}

func TestPoll_OrphanDepositIsNotCredited(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.99")}

	f.engine.Poll(ctx)

	intent, err := f.db.GetActiveIntent(ctx, user.Id, f.now)
	if err != nil {
		t.Fatalf("GetActiveIntent failed: %v", err)
	}
	if intent.Status != models.IntentStatusWaiting {
		t.Errorf("Expected intent to stay waiting, got %s", intent.Status)
	}

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance for orphan deposit, got %s", balance)
	}
}

func TestPoll_InexactDepositIsOrphaned(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")

	// 3.444 is close to the reserved amount but not equal to it.
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.444")}

	f.engine.Poll(ctx)

	if _, err := f.db.FindIntentByExternalTxId(ctx, "dep-1"); !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected inexact deposit to stay unsettled, got %v", err)
	}

	intent, err := f.db.GetActiveIntent(ctx, user.Id, f.now)
	if err != nil {
		t.Fatalf("GetActiveIntent failed: %v", err)
	}
	if intent.Status != models.IntentStatusWaiting {
		t.Errorf("Expected intent to stay waiting, got %s", intent.Status)
	}

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance for inexact deposit, got %s", balance)
	}
}

func TestPoll_UnconfirmedDepositWaitsForLaterCycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")

	pending := confirmedDeposit("dep-1", "3.44")
	pending.Status = models.DepositStatusPending
	f.gateway.events = []models.DepositEvent{pending}

	f.engine.Poll(ctx)

	intent, err := f.db.GetActiveIntent(ctx, user.Id, f.now)
	if err != nil {
		t.Fatalf("GetActiveIntent failed: %v", err)
	}
	if intent.Status != models.IntentStatusWaiting {
		t.Errorf("Expected intent to stay waiting, got %s", intent.Status)
	}

	// The exchange confirms the deposit before the next cycle.
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}
	f.engine.Poll(ctx)

	if _, err := f.db.FindIntentByExternalTxId(ctx, "dep-1"); err != nil {
		t.Errorf("Expected intent to settle once confirmed: %v", err)
	}
}

func TestPoll_ExpiredIntentNeverSettles(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")

	// The deposit arrives after the intent's deadline.
	f.now = f.now.Add(31 * time.Minute)
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)

	if _, err := f.db.FindIntentByExternalTxId(ctx, "dep-1"); !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected no settlement for expired intent, got %v", err)
	}

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", balance)
	}
}

func TestPoll_ExpirySweepRunsOnGatewayFailure(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")

	f.now = f.now.Add(31 * time.Minute)
	f.gateway.err = errors.New("exchange unavailable")

	f.engine.Poll(ctx)

	// The stale intent was swept even though the fetch failed.
	if _, err := f.db.GetActiveIntent(ctx, user.Id, f.now); !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected intent to be expired, got %v", err)
	}
}

func TestPoll_ReferralReward(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	referrer := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	referred := f.createUser(t, "Bob", "bob@example.com", "Silver", referrer.Id)
	f.createIntent(t, referred, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)

	reward := decimal.RequireFromString("0.86")

	referredBalance, err := f.db.GetUserBalance(ctx, referred.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !referredBalance.Equal(reward) {
		t.Errorf("Expected referred balance %s, got %s", reward, referredBalance)
	}

	// The referrer gets the same flat amount.
	referrerBalance, err := f.db.GetUserBalance(ctx, referrer.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !referrerBalance.Equal(reward) {
		t.Errorf("Expected referrer balance %s, got %s", reward, referrerBalance)
	}

	count, err := f.db.CountReferralRewards(ctx, referrer.Id)
	if err != nil {
		t.Fatalf("CountReferralRewards failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 referral reward, got %d", count)
	}

	updated, err := f.db.GetUserById(ctx, referrer.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if !updated.Points.Equal(reward) {
		t.Errorf("Expected referrer points %s, got %s", reward, updated.Points)
	}
}

// flakyLedger fails a configured number of credits before behaving
// normally, standing in for a transient store error mid-settlement.
type flakyLedger struct {
	store.LedgerStore
	failures int
	credits  int
}

func (l *flakyLedger) CreditBalance(ctx context.Context, userId, asset string, amount decimal.Decimal, externalTxId, reference string) error {
	l.credits++
	if l.credits <= l.failures {
		return errors.New("ledger temporarily unavailable")
	}
	return l.LedgerStore.CreditBalance(ctx, userId, asset, amount, externalTxId, reference)
}

func TestPoll_RewardRetriedAfterCreditFailure(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	ledger := &flakyLedger{LedgerStore: f.db, failures: 1}
	engine := NewEngine(EngineConfig{
		Store:           ledger,
		Gateway:         f.gateway,
		Sink:            f.sink,
		Tables:          config.DefaultTables(),
		PollInterval:    2 * time.Minute,
		LookbackWindow:  10 * time.Minute,
		CleanupInterval: 15 * time.Minute,
		Asset:           "USDT",
		Network:         "TRX",
	})
	engine.now = func() time.Time { return f.now }

	// The first cycle completes the intent but the credit fails, so the
	// user must stay ineligible for the retry to pick up.
	engine.Poll(ctx)

	updated, err := f.db.GetUserById(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if updated.Eligible {
		t.Fatal("Expected user to stay ineligible while the reward is unpaid")
	}

	engine.Poll(ctx)

	updated, err = f.db.GetUserById(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if !updated.Eligible {
		t.Error("Expected user to become eligible once the reward landed")
	}

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("0.86")) {
		t.Errorf("Expected reward balance 0.86 after retry, got %s", balance)
	}

	history, err := f.db.GetTransactionHistory(ctx, user.Id, "USDT", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected exactly 1 credit after retry, got %d", len(history))
	}
}

func TestPoll_EligibleUserGetsNoSecondReward(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	if err := f.db.MarkEligible(ctx, user.Id, "Silver"); err != nil {
		t.Fatalf("MarkEligible failed: %v", err)
	}

	f.createIntent(t, user, "3.44")
	f.gateway.events = []models.DepositEvent{confirmedDeposit("dep-1", "3.44")}

	f.engine.Poll(ctx)

	// The intent completes but no reward is paid out.
	settled, err := f.db.FindIntentByExternalTxId(ctx, "dep-1")
	if err != nil {
		t.Fatalf("Intent was not settled: %v", err)
	}
	if settled.Status != models.IntentStatusCompleted {
		t.Errorf("Expected status completed, got %s", settled.Status)
	}

	balance, err := f.db.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance for already eligible user, got %s", balance)
	}
}

func TestPoll_PerEventIsolation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "Alice", "alice@example.com", "Silver", "")
	f.createIntent(t, user, "3.44")

	// A malformed event must not stop the valid one behind it.
	f.gateway.events = []models.DepositEvent{
		confirmedDeposit("dep-bad", "not-a-number"),
		confirmedDeposit("dep-1", "3.44"),
	}

	f.engine.Poll(ctx)

	if _, err := f.db.FindIntentByExternalTxId(ctx, "dep-1"); err != nil {
		t.Errorf("Expected valid event to settle despite earlier failure: %v", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	f := newEngineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.engine.Start(ctx)
	f.engine.Stop()

	f.gateway.mu.Lock()
	calls := f.gateway.calls
	f.gateway.mu.Unlock()
	if calls == 0 {
		t.Error("Expected at least one poll before shutdown")
	}
}
