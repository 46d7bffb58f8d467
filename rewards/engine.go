package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mintgate/ledgerrpc"
	"mintgate/models"
	"mintgate/observability"
)

// ErrValidation indicates a missing required field in a track request.
var ErrValidation = errors.New("rewards: invalid request")

// LedgerClient abstracts the payout submission collaborator.
type LedgerClient interface {
	SubmitPayment(ctx context.Context, req ledgerrpc.PaymentRequest) (string, error)
}

// Config captures the dependencies required to construct the engine.
type Config struct {
	DB         *gorm.DB
	Ledger     LedgerClient
	Rules      RuleSource
	Currency   string
	Issuer     string
	BatchLimit int
	Logger     *slog.Logger
	Metrics    *observability.GatewayMetrics
	Now        func() time.Time
}

// Engine records learner actions exactly once per key and settles accrued
// rewards in sequential batches.
type Engine struct {
	db         *gorm.DB
	ledger     LedgerClient
	rules      RuleSource
	currency   string
	issuer     string
	batchLimit int
	log        *slog.Logger
	metrics    *observability.GatewayMetrics
	now        func() time.Time
}

// NewEngine constructs a configured reward engine.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		db:         cfg.DB,
		ledger:     cfg.Ledger,
		rules:      cfg.Rules,
		currency:   strings.TrimSpace(cfg.Currency),
		issuer:     strings.TrimSpace(cfg.Issuer),
		batchLimit: cfg.BatchLimit,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if e.batchLimit <= 0 {
		e.batchLimit = 50
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = observability.Gateway()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// TrackParams identifies one learner action.
type TrackParams struct {
	Wallet       string
	SubmissionID uint
	ActionType   string
	ActionRef    string
}

// TrackResult reports whether the action was newly recorded or replayed.
type TrackResult struct {
	AlreadyRecorded bool    `json:"already_recorded"`
	TokensEarned    float64 `json:"tokens_earned"`
}

// Track records a learner action at most once per (wallet, submission, action
// type, action ref). Replays return success without a new entry or a second
// award. The token amount comes from the creator's reward-rule document when
// one defines the action type, otherwise from the default table.
func (e *Engine) Track(ctx context.Context, params TrackParams) (*TrackResult, error) {
	wallet := strings.TrimSpace(params.Wallet)
	actionType := strings.TrimSpace(params.ActionType)
	actionRef := strings.TrimSpace(params.ActionRef)
	if wallet == "" || params.SubmissionID == 0 || actionType == "" || actionRef == "" {
		return nil, fmt.Errorf("%w: wallet, submission_id, action_type, and action_ref are required", ErrValidation)
	}

	amount := e.rewardAmount(ctx, params.SubmissionID, actionType)

	now := e.now()
	entry := models.RewardEntry{
		Wallet:       wallet,
		SubmissionID: params.SubmissionID,
		ActionType:   actionType,
		ActionRef:    actionRef,
		TokensEarned: amount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The insert races with replays of the same action; the unique index plus
	// DO NOTHING makes the dedup atomic at the storage layer.
	res := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "wallet"}, {Name: "submission_id"}, {Name: "action_type"}, {Name: "action_ref"},
		},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		e.metrics.RecordReward("duplicate")
		var existing models.RewardEntry
		if err := e.db.WithContext(ctx).
			First(&existing, "wallet = ? AND submission_id = ? AND action_type = ? AND action_ref = ?",
				wallet, params.SubmissionID, actionType, actionRef).Error; err == nil {
			return &TrackResult{AlreadyRecorded: true, TokensEarned: existing.TokensEarned}, nil
		}
		return &TrackResult{AlreadyRecorded: true}, nil
	}
	e.metrics.RecordReward("recorded")
	return &TrackResult{TokensEarned: amount}, nil
}

// rewardAmount resolves the award for an action. Rule-document failures are
// swallowed: they degrade to the default table, never to a caller error.
func (e *Engine) rewardAmount(ctx context.Context, submissionID uint, actionType string) float64 {
	if e.rules != nil {
		var sub models.Submission
		if err := e.db.WithContext(ctx).Select("metadata_c_id").First(&sub, "id = ?", submissionID).Error; err == nil {
			if amount, ok := e.rules.Lookup(ctx, sub.MetadataCID, actionType); ok {
				return amount
			}
		}
	}
	return DefaultRewards[actionType]
}

// PayoutOutcome reports the settlement attempt for one ledger entry.
type PayoutOutcome struct {
	EntryID uint    `json:"entry_id"`
	Wallet  string  `json:"wallet"`
	Amount  float64 `json:"amount"`
	TxHash  string  `json:"tx_hash,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// PayoutResult aggregates a payout batch.
type PayoutResult struct {
	Paid     int             `json:"paid"`
	Outcomes []PayoutOutcome `json:"outcomes"`
}

// Payout settles outstanding entries oldest first, up to batchLimit. Entries
// are processed sequentially; a failure on one entry is recorded in its
// outcome and the batch continues. tokens_paid never exceeds tokens_earned.
func (e *Engine) Payout(ctx context.Context, batchLimit int) (*PayoutResult, error) {
	if e.ledger == nil {
		return nil, fmt.Errorf("rewards: ledger client not configured")
	}
	if batchLimit <= 0 {
		batchLimit = e.batchLimit
	}

	var entries []models.RewardEntry
	if err := e.db.WithContext(ctx).
		Where("tokens_earned > tokens_paid").
		Order("created_at ASC").
		Limit(batchLimit).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	result := &PayoutResult{Outcomes: make([]PayoutOutcome, 0, len(entries))}
	for _, entry := range entries {
		outcome := PayoutOutcome{EntryID: entry.ID, Wallet: entry.Wallet, Amount: entry.Outstanding()}
		if outcome.Amount <= 0 {
			continue
		}
		txHash, err := e.ledger.SubmitPayment(ctx, ledgerrpc.PaymentRequest{
			Destination: entry.Wallet,
			Amount:      outcome.Amount,
			Currency:    e.currency,
			Issuer:      e.issuer,
		})
		if err != nil {
			e.metrics.RecordPayout("failed")
			e.log.Warn("reward payout failed", "entry_id", entry.ID, "wallet", entry.Wallet, "error", err)
			outcome.Error = err.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if err := e.db.WithContext(ctx).Model(&models.RewardEntry{}).
			Where("id = ? AND tokens_paid < tokens_earned", entry.ID).
			Updates(map[string]interface{}{
				"tokens_paid": entry.TokensEarned,
				"tx_hash":     txHash,
				"updated_at":  e.now(),
			}).Error; err != nil {
			// The payment cleared but the settlement write failed; surface it
			// in the outcome so an operator can reconcile by hand.
			e.log.Error("reward settlement write failed", "entry_id", entry.ID, "tx_hash", txHash, "error", err)
			outcome.TxHash = txHash
			outcome.Error = err.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		e.metrics.RecordPayout("paid")
		outcome.TxHash = txHash
		result.Paid++
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

// Activity returns the most recent ledger entries for the admin view.
func (e *Engine) Activity(ctx context.Context, limit int) ([]models.RewardEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	var entries []models.RewardEntry
	if err := e.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
