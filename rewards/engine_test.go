package rewards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mintgate/ledgerrpc"
	"mintgate/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB, metadataCID string) uint {
	t.Helper()
	sub := models.Submission{
		CreatorWallet: "rCreator",
		MetadataCID:   metadataCID,
		BatchQty:      1,
		Moderation:    models.ModerationApproved,
		Payment:       models.PaymentPaid,
		Mint:          models.MintMinted,
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return sub.ID
}

type fakePayoutLedger struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]error
	lastHash int
}

func (f *fakePayoutLedger) SubmitPayment(_ context.Context, req ledgerrpc.PaymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failFor[req.Destination]; ok {
		return "", err
	}
	f.lastHash++
	return fmt.Sprintf("HASH%04d", f.lastHash), nil
}

func TestTrackValidation(t *testing.T) {
	db := setupTestDB(t)
	e := NewEngine(Config{DB: db})

	cases := []TrackParams{
		{SubmissionID: 1, ActionType: "read", ActionRef: "page-1"},
		{Wallet: "rLearner", ActionType: "read", ActionRef: "page-1"},
		{Wallet: "rLearner", SubmissionID: 1, ActionRef: "page-1"},
		{Wallet: "rLearner", SubmissionID: 1, ActionType: "read"},
	}
	for i, params := range cases {
		if _, err := e.Track(context.Background(), params); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestTrackDefaultAwardAndDedup(t *testing.T) {
	db := setupTestDB(t)
	subID := seedSubmission(t, db, "QmMeta")
	e := NewEngine(Config{DB: db})

	params := TrackParams{Wallet: "rLearner", SubmissionID: subID, ActionType: "read", ActionRef: "page-3"}

	first, err := e.Track(context.Background(), params)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if first.AlreadyRecorded {
		t.Fatalf("first track must be a new record")
	}
	if first.TokensEarned != DefaultRewards["read"] {
		t.Fatalf("expected default read award %v, got %v", DefaultRewards["read"], first.TokensEarned)
	}

	second, err := e.Track(context.Background(), params)
	if err != nil {
		t.Fatalf("track replay: %v", err)
	}
	if !second.AlreadyRecorded {
		t.Fatalf("replay must report already recorded")
	}
	if second.TokensEarned != first.TokensEarned {
		t.Fatalf("replay must report the original award, got %v", second.TokensEarned)
	}

	var count int64
	if err := db.Model(&models.RewardEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single ledger entry, got %d", count)
	}

	// Distinct refs accrue independently.
	if _, err := e.Track(context.Background(), TrackParams{Wallet: "rLearner", SubmissionID: subID, ActionType: "read", ActionRef: "page-4"}); err != nil {
		t.Fatalf("track distinct ref: %v", err)
	}
	if err := db.Model(&models.RewardEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two ledger entries, got %d", count)
	}
}

func TestTrackRuleOverride(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/QmRules":
			fmt.Fprint(w, `{"learn": {"read": 42.5}}`)
		case "/QmBroken":
			fmt.Fprint(w, `{not json`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer gateway.Close()

	db := setupTestDB(t)
	ruled := seedSubmission(t, db, "QmRules")
	broken := seedSubmission(t, db, "QmBroken")
	missing := seedSubmission(t, db, "QmMissing")

	e := NewEngine(Config{
		DB:    db,
		Rules: NewRuleFetcher(RuleFetcherConfig{GatewayBase: gateway.URL, Timeout: time.Second}),
	})

	result, err := e.Track(context.Background(), TrackParams{Wallet: "rLearner", SubmissionID: ruled, ActionType: "read", ActionRef: "page-1"})
	if err != nil {
		t.Fatalf("track with override: %v", err)
	}
	if result.TokensEarned != 42.5 {
		t.Fatalf("expected rule override 42.5, got %v", result.TokensEarned)
	}

	// Rule doc only overrides the action types it names.
	result, err = e.Track(context.Background(), TrackParams{Wallet: "rLearner", SubmissionID: ruled, ActionType: "activity", ActionRef: "quiz-1"})
	if err != nil {
		t.Fatalf("track unnamed action: %v", err)
	}
	if result.TokensEarned != DefaultRewards["activity"] {
		t.Fatalf("expected default activity award, got %v", result.TokensEarned)
	}

	// Malformed and missing documents degrade to the defaults.
	for _, id := range []uint{broken, missing} {
		result, err = e.Track(context.Background(), TrackParams{Wallet: "rLearner", SubmissionID: id, ActionType: "read", ActionRef: "page-1"})
		if err != nil {
			t.Fatalf("track submission %d: %v", id, err)
		}
		if result.TokensEarned != DefaultRewards["read"] {
			t.Fatalf("submission %d: expected default award, got %v", id, result.TokensEarned)
		}
	}
}

func TestTrackUnknownActionEarnsNothing(t *testing.T) {
	db := setupTestDB(t)
	subID := seedSubmission(t, db, "QmMeta")
	e := NewEngine(Config{DB: db})

	result, err := e.Track(context.Background(), TrackParams{Wallet: "rLearner", SubmissionID: subID, ActionType: "share", ActionRef: "tw-1"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.TokensEarned != 0 {
		t.Fatalf("unknown action type must earn 0, got %v", result.TokensEarned)
	}
}

func TestPayoutSettlesOutstanding(t *testing.T) {
	db := setupTestDB(t)
	subID := seedSubmission(t, db, "QmMeta")
	ledger := &fakePayoutLedger{}
	e := NewEngine(Config{DB: db, Ledger: ledger, Currency: "CFC"})

	for i := 0; i < 3; i++ {
		if _, err := e.Track(context.Background(), TrackParams{
			Wallet:       fmt.Sprintf("rLearner%d", i),
			SubmissionID: subID,
			ActionType:   "read",
			ActionRef:    "page-1",
		}); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}

	result, err := e.Payout(context.Background(), 0)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if result.Paid != 3 {
		t.Fatalf("expected 3 paid, got %d", result.Paid)
	}
	for _, outcome := range result.Outcomes {
		if outcome.Error != "" || outcome.TxHash == "" {
			t.Fatalf("unexpected outcome %+v", outcome)
		}
	}

	var entries []models.RewardEntry
	if err := db.Find(&entries).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	for _, entry := range entries {
		if entry.Outstanding() != 0 {
			t.Fatalf("entry %d still outstanding %v", entry.ID, entry.Outstanding())
		}
		if entry.TokensPaid > entry.TokensEarned {
			t.Fatalf("entry %d overpaid: paid %v earned %v", entry.ID, entry.TokensPaid, entry.TokensEarned)
		}
		if entry.TxHash == "" {
			t.Fatalf("entry %d missing settlement hash", entry.ID)
		}
	}

	// Settled entries are not paid again.
	again, err := e.Payout(context.Background(), 0)
	if err != nil {
		t.Fatalf("second payout: %v", err)
	}
	if again.Paid != 0 || len(again.Outcomes) != 0 {
		t.Fatalf("expected empty second batch, got %+v", again)
	}
}

func TestPayoutContinuesPastFailures(t *testing.T) {
	db := setupTestDB(t)
	subID := seedSubmission(t, db, "QmMeta")
	ledger := &fakePayoutLedger{failFor: map[string]error{"rLearner1": errors.New("tecPATH_DRY")}}
	e := NewEngine(Config{DB: db, Ledger: ledger})

	for i := 0; i < 3; i++ {
		if _, err := e.Track(context.Background(), TrackParams{
			Wallet:       fmt.Sprintf("rLearner%d", i),
			SubmissionID: subID,
			ActionType:   "activity",
			ActionRef:    "quiz-1",
		}); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}

	result, err := e.Payout(context.Background(), 0)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if result.Paid != 2 {
		t.Fatalf("expected 2 paid, got %d", result.Paid)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}
	failed := 0
	for _, outcome := range result.Outcomes {
		if outcome.Error != "" {
			failed++
			if outcome.Wallet != "rLearner1" {
				t.Fatalf("unexpected failed wallet %s", outcome.Wallet)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed outcome, got %d", failed)
	}

	// The failed entry stays outstanding for the next batch.
	var entry models.RewardEntry
	if err := db.First(&entry, "wallet = ?", "rLearner1").Error; err != nil {
		t.Fatalf("load failed entry: %v", err)
	}
	if entry.Outstanding() <= 0 {
		t.Fatalf("failed entry must remain outstanding")
	}
}

func TestPayoutHonorsBatchLimit(t *testing.T) {
	db := setupTestDB(t)
	subID := seedSubmission(t, db, "QmMeta")
	ledger := &fakePayoutLedger{}
	e := NewEngine(Config{DB: db, Ledger: ledger})

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		entry := models.RewardEntry{
			Wallet:       fmt.Sprintf("rLearner%d", i),
			SubmissionID: subID,
			ActionType:   "read",
			ActionRef:    "page-1",
			TokensEarned: 10,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("seed entry %d: %v", i, err)
		}
	}

	result, err := e.Payout(context.Background(), 2)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if result.Paid != 2 {
		t.Fatalf("expected 2 paid with limit 2, got %d", result.Paid)
	}
	// Oldest first.
	if result.Outcomes[0].Wallet != "rLearner0" || result.Outcomes[1].Wallet != "rLearner1" {
		t.Fatalf("expected oldest entries first, got %s then %s", result.Outcomes[0].Wallet, result.Outcomes[1].Wallet)
	}
}

func TestPayoutRequiresLedger(t *testing.T) {
	db := setupTestDB(t)
	e := NewEngine(Config{DB: db})
	if _, err := e.Payout(context.Background(), 0); err == nil {
		t.Fatalf("expected error without a ledger client")
	}
}
