package lifecycle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mintgate/ledgerrpc"
	"mintgate/marketplace"
	"mintgate/models"
	"mintgate/observability"
	"mintgate/signing"
)

// Sentinel errors surfaced to callers. Handlers map these onto HTTP statuses.
var (
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("lifecycle: invalid request")
	// ErrNotFound indicates the referenced submission does not exist.
	ErrNotFound = errors.New("lifecycle: submission not found")
	// ErrSessionMismatch indicates a confirmation carried the wrong session id.
	ErrSessionMismatch = errors.New("lifecycle: session id does not match")
	// ErrNotReady indicates a precondition on another state axis is not met.
	ErrNotReady = errors.New("lifecycle: submission not ready")
	// ErrUpstream indicates a required external gateway call failed.
	ErrUpstream = errors.New("lifecycle: upstream gateway unavailable")
)

// SigningClient abstracts the wallet-signing gateway methods the engine uses.
type SigningClient interface {
	CreateSession(ctx context.Context, txJSON map[string]interface{}) (*signing.Session, error)
	GetSession(ctx context.Context, sessionID string) (*signing.SessionStatus, error)
}

// LedgerClient abstracts the ledger lookups used to enrich minted submissions.
type LedgerClient interface {
	Tx(ctx context.Context, hash string) (*ledgerrpc.TxRecord, error)
}

// Notifier abstracts the marketplace announcement collaborator.
type Notifier interface {
	Notify(ctx context.Context, listing marketplace.Listing) error
}

// MintHook runs after a pending→minted transition has been durably committed.
// Hooks execute on the single call that applied the transition, never on
// idempotent replays, and their failures are logged rather than propagated.
type MintHook func(ctx context.Context, sub models.Submission, status signing.SessionStatus)

// Config captures the dependencies required to construct the engine.
type Config struct {
	DB              *gorm.DB
	Signer          SigningClient
	Ledger          LedgerClient
	Notifier        Notifier
	Destination     string
	FeeDropsPerItem int64
	Logger          *slog.Logger
	Metrics         *observability.GatewayMetrics
	Now             func() time.Time
}

// Engine owns the submission lifecycle state machine: which transitions are
// legal, how confirmation callbacks are deduplicated, and when dependent side
// effects fire.
type Engine struct {
	db              *gorm.DB
	signer          SigningClient
	ledger          LedgerClient
	notifier        Notifier
	destination     string
	feeDropsPerItem int64
	log             *slog.Logger
	metrics         *observability.GatewayMetrics
	now             func() time.Time

	afterMint []MintHook
}

// NewEngine constructs a configured lifecycle engine. The default post-mint
// hooks enrich the submission with the minted token id and announce it to the
// marketplace when those collaborators are configured.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		db:              cfg.DB,
		signer:          cfg.Signer,
		ledger:          cfg.Ledger,
		notifier:        cfg.Notifier,
		destination:     strings.TrimSpace(cfg.Destination),
		feeDropsPerItem: cfg.FeeDropsPerItem,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		now:             cfg.Now,
	}
	if e.feeDropsPerItem <= 0 {
		e.feeDropsPerItem = 1_000_000
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
	if e.ledger != nil {
		e.afterMint = append(e.afterMint, e.recordTokenID)
	}
	if e.notifier != nil {
		e.afterMint = append(e.afterMint, e.announceListing)
	}
	return e
}

// CreateParams bundles the creator-supplied fields of a new submission.
type CreateParams struct {
	Wallet      string
	Name        string
	Description string
	ImageCID    string
	MetadataCID string
	Quantity    int
	Terms       string
	PriceXRP    string
	PriceRLUSD  string
	Email       string
	Website     string
}

// Create registers a new submission in its initial composite state.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*models.Submission, error) {
	wallet := strings.TrimSpace(params.Wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}
	metadataCID := strings.TrimSpace(params.MetadataCID)
	if metadataCID == "" {
		return nil, fmt.Errorf("%w: metadata content id is required", ErrValidation)
	}
	qty := params.Quantity
	if qty < 1 {
		qty = 1
	}

	now := e.now()
	sub := models.Submission{
		CreatorWallet: wallet,
		Name:          strings.TrimSpace(params.Name),
		Description:   params.Description,
		ImageCID:      strings.TrimSpace(params.ImageCID),
		MetadataCID:   metadataCID,
		BatchQty:      qty,
		Moderation:    models.ModerationPending,
		Payment:       models.PaymentUnpaid,
		Mint:          models.MintPending,
		Terms:         params.Terms,
		PriceXRP:      strings.TrimSpace(params.PriceXRP),
		PriceRLUSD:    strings.TrimSpace(params.PriceRLUSD),
		Email:         strings.TrimSpace(params.Email),
		Website:       strings.TrimSpace(params.Website),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		return e.appendEvent(tx, sub.ID, wallet, "submission.created", fmt.Sprintf("qty=%d metadata_cid=%s", qty, metadataCID))
	}); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Get loads a submission by id.
func (e *Engine) Get(ctx context.Context, id uint) (*models.Submission, error) {
	var sub models.Submission
	if err := e.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// List returns all submissions, newest first. Intended for the admin view.
func (e *Engine) List(ctx context.Context) ([]models.Submission, error) {
	var subs []models.Submission
	if err := e.db.WithContext(ctx).Order("id DESC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// Decision is an administrator moderation verdict.
type Decision string

// Moderation decisions.
const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Moderate applies an administrator decision. Approving clears any prior
// rejection reason; rejecting stores the reason and retains the record.
// Re-applying the current decision is a no-op with the same observable result.
func (e *Engine) Moderate(ctx context.Context, id uint, decision Decision, reason string) (*models.Submission, error) {
	var next models.ModerationStatus
	switch decision {
	case DecisionApprove:
		next = models.ModerationApproved
	case DecisionReject:
		next = models.ModerationRejected
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	var sub models.Submission
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := ValidateModeration(sub.Moderation, next); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		sub.Moderation = next
		if next == models.ModerationApproved {
			sub.RejectionReason = ""
		} else {
			sub.RejectionReason = strings.TrimSpace(reason)
		}
		sub.UpdatedAt = e.now()
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		return e.appendEvent(tx, sub.ID, "admin", "submission."+string(next), sub.RejectionReason)
	})
	if err != nil {
		e.metrics.RecordTransition("moderation", "rejected")
		return nil, err
	}
	e.metrics.RecordTransition("moderation", "applied")
	return &sub, nil
}

// RequestPayment opens a signing session for the fixed mint fee. The
// submission must be approved and still unpaid. A new request replaces any
// previous pending payment session.
func (e *Engine) RequestPayment(ctx context.Context, id uint) (*signing.Session, error) {
	if e.signer == nil {
		return nil, fmt.Errorf("%w: signing gateway not configured", ErrUpstream)
	}
	sub, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Moderation != models.ModerationApproved {
		return nil, fmt.Errorf("%w: submission must be approved before payment", ErrNotReady)
	}
	if sub.Payment == models.PaymentPaid {
		return nil, fmt.Errorf("%w: submission already paid", ErrNotReady)
	}

	amount := e.feeDropsPerItem * int64(sub.BatchQty)
	session, err := e.signer.CreateSession(ctx, map[string]interface{}{
		"TransactionType": "Payment",
		"Destination":     e.destination,
		"Amount":          strconv.FormatInt(amount, 10),
	})
	if err != nil {
		e.metrics.RecordUpstreamError("signing")
		return nil, fmt.Errorf("%w: create payment session: %v", ErrUpstream, err)
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if current.Payment == models.PaymentPaid {
			return fmt.Errorf("%w: submission already paid", ErrNotReady)
		}
		current.PaymentSessionID = session.SessionID
		current.UpdatedAt = e.now()
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		return e.appendEvent(tx, id, current.CreatorWallet, "payment.requested", fmt.Sprintf("session=%s amount_drops=%d", session.SessionID, amount))
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmResult reports the outcome of a confirmation callback. Replays of an
// already-applied confirmation produce the same result as the applying call.
type ConfirmResult struct {
	// Status is one of "pending", "declined", "paid", or "minted".
	Status string `json:"status"`
}

// ConfirmPayment validates the session id and, when the gateway reports the
// session signed, transitions payment to paid exactly once. Replays with the
// same session id after the transition return the same success result.
func (e *Engine) ConfirmPayment(ctx context.Context, id uint, sessionID string) (*ConfirmResult, error) {
	sub, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sub.PaymentSessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	if sub.Payment == models.PaymentPaid {
		e.metrics.RecordTransition("payment", "noop")
		return &ConfirmResult{Status: "paid"}, nil
	}
	if e.signer == nil {
		return nil, fmt.Errorf("%w: signing gateway not configured", ErrUpstream)
	}

	status, err := e.signer.GetSession(ctx, sessionID)
	if err != nil {
		e.metrics.RecordUpstreamError("signing")
		return nil, fmt.Errorf("%w: query payment session: %v", ErrUpstream, err)
	}
	if !status.Resolved {
		return &ConfirmResult{Status: "pending"}, nil
	}
	if !status.Signed {
		// Declined. State stays unpaid; the creator may request a new session.
		return &ConfirmResult{Status: "declined"}, nil
	}

	applied, err := e.applyPayment(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if applied {
		e.metrics.RecordTransition("payment", "applied")
	} else {
		e.metrics.RecordTransition("payment", "noop")
	}
	return &ConfirmResult{Status: "paid"}, nil
}

// applyPayment performs the conditional unpaid→paid update. The WHERE guard on
// the prior state and session id makes the transition atomic: under concurrent
// confirmations exactly one call observes RowsAffected==1.
func (e *Engine) applyPayment(ctx context.Context, id uint, sessionID string) (bool, error) {
	applied := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND payment_session_id = ? AND payment = ?", id, sessionID, models.PaymentUnpaid).
			Updates(map[string]interface{}{"payment": models.PaymentPaid, "updated_at": e.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another confirmation won the race; nothing further to do.
			return nil
		}
		applied = true
		return e.appendEvent(tx, id, "system", "payment.confirmed", "session="+sessionID)
	})
	return applied, err
}

// RequestMint opens a signing session for the mint transaction. Requires
// payment to have cleared. Calling it again before confirmation replaces the
// outstanding mint session, keeping at most one live per submission.
func (e *Engine) RequestMint(ctx context.Context, id uint) (*signing.Session, error) {
	if e.signer == nil {
		return nil, fmt.Errorf("%w: signing gateway not configured", ErrUpstream)
	}
	sub, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Payment != models.PaymentPaid {
		return nil, fmt.Errorf("%w: payment has not cleared", ErrNotReady)
	}
	if sub.Mint == models.MintMinted {
		return nil, fmt.Errorf("%w: submission already minted", ErrNotReady)
	}

	session, err := e.signer.CreateSession(ctx, map[string]interface{}{
		"TransactionType": "NFTokenMint",
		"Account":         sub.CreatorWallet,
		"URI":             contentURIHex(sub.MetadataCID),
		"Flags":           8,
		"NFTokenTaxon":    0,
	})
	if err != nil {
		e.metrics.RecordUpstreamError("signing")
		return nil, fmt.Errorf("%w: create mint session: %v", ErrUpstream, err)
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if current.Payment != models.PaymentPaid {
			return fmt.Errorf("%w: payment has not cleared", ErrNotReady)
		}
		if current.Mint == models.MintMinted {
			return fmt.Errorf("%w: submission already minted", ErrNotReady)
		}
		current.MintSessionID = session.SessionID
		current.UpdatedAt = e.now()
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		return e.appendEvent(tx, id, current.CreatorWallet, "mint.requested", "session="+session.SessionID)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmMint follows the same session-match and exactly-once discipline as
// ConfirmPayment. On the call that applies pending→minted the post-commit
// hooks run once: token id enrichment and the marketplace announcement. Hook
// failures are logged and never roll back the transition.
func (e *Engine) ConfirmMint(ctx context.Context, id uint, sessionID string) (*ConfirmResult, error) {
	sub, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sub.MintSessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	if sub.Mint == models.MintMinted {
		e.metrics.RecordTransition("mint", "noop")
		return &ConfirmResult{Status: "minted"}, nil
	}
	if sub.Payment != models.PaymentPaid {
		return nil, fmt.Errorf("%w: payment has not cleared", ErrNotReady)
	}
	if e.signer == nil {
		return nil, fmt.Errorf("%w: signing gateway not configured", ErrUpstream)
	}

	status, err := e.signer.GetSession(ctx, sessionID)
	if err != nil {
		e.metrics.RecordUpstreamError("signing")
		return nil, fmt.Errorf("%w: query mint session: %v", ErrUpstream, err)
	}
	if !status.Resolved {
		return &ConfirmResult{Status: "pending"}, nil
	}
	if !status.Signed {
		return &ConfirmResult{Status: "declined"}, nil
	}

	applied := false
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND mint_session_id = ? AND mint = ? AND payment = ?",
				id, sessionID, models.MintPending, models.PaymentPaid).
			Updates(map[string]interface{}{"mint": models.MintMinted, "updated_at": e.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return e.appendEvent(tx, id, "system", "mint.confirmed", "session="+sessionID)
	})
	if err != nil {
		return nil, err
	}
	if applied {
		e.metrics.RecordTransition("mint", "applied")
		minted, err := e.Get(ctx, id)
		if err == nil {
			for _, hook := range e.afterMint {
				hook(ctx, *minted, *status)
			}
		}
	} else {
		e.metrics.RecordTransition("mint", "noop")
	}
	return &ConfirmResult{Status: "minted"}, nil
}

// ToggleDelist sets the delisted flag. It has no precondition on the other
// state axes and is idempotent.
func (e *Engine) ToggleDelist(ctx context.Context, id uint, delisted bool) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sub.Delisted == delisted {
			return nil
		}
		sub.Delisted = delisted
		sub.UpdatedAt = e.now()
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		return e.appendEvent(tx, id, sub.CreatorWallet, "submission.delist_toggled", fmt.Sprintf("delisted=%t", delisted))
	})
}

// recordTokenID looks up the confirmed mint transaction and stores the minted
// token id. Best-effort: the minted transition stands whether or not the
// ledger lookup succeeds.
func (e *Engine) recordTokenID(ctx context.Context, sub models.Submission, status signing.SessionStatus) {
	txid := strings.TrimSpace(status.ResultTxID)
	if txid == "" {
		return
	}
	record, err := e.ledger.Tx(ctx, txid)
	if err != nil {
		e.metrics.RecordUpstreamError("ledger")
		e.log.Warn("mint token lookup failed", "submission_id", sub.ID, "txid", txid, "error", err)
		return
	}
	tokenID := strings.TrimSpace(record.TokenID)
	if tokenID == "" {
		return
	}
	if err := e.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", sub.ID).
		Update("token_id", tokenID).Error; err != nil {
		e.log.Warn("persist token id failed", "submission_id", sub.ID, "error", err)
	}
}

// announceListing pushes the minted submission to the marketplace.
// Best-effort: a failed announcement is logged and never fails the caller.
func (e *Engine) announceListing(ctx context.Context, sub models.Submission, _ signing.SessionStatus) {
	listing := marketplace.Listing{
		SubmissionID:  sub.ID,
		Name:          sub.Name,
		Description:   sub.Description,
		Category:      "all",
		ImageCID:      sub.ImageCID,
		MetadataCID:   sub.MetadataCID,
		PriceXRP:      sub.PriceXRP,
		PriceRLUSD:    sub.PriceRLUSD,
		CreatorWallet: sub.CreatorWallet,
		Terms:         sub.Terms,
		Website:       sub.Website,
		Quantity:      1,
	}
	if err := e.notifier.Notify(ctx, listing); err != nil {
		e.metrics.RecordUpstreamError("marketplace")
		e.log.Warn("marketplace notify failed", "submission_id", sub.ID, "error", err)
		return
	}
	if err := e.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", sub.ID).
		Update("sent_to_marketplace", true).Error; err != nil {
		e.log.Warn("persist marketplace flag failed", "submission_id", sub.ID, "error", err)
	}
}

func (e *Engine) appendEvent(tx *gorm.DB, submissionID uint, actor, action, details string) error {
	event := models.Event{
		SubmissionID: &submissionID,
		Actor:        actor,
		Action:       action,
		Details:      details,
		CreatedAt:    e.now(),
	}
	return tx.Create(&event).Error
}

// contentURIHex encodes the metadata reference the way the ledger expects
// token URIs: uppercase hex of the ipfs:// form.
func contentURIHex(cid string) string {
	return strings.ToUpper(hex.EncodeToString([]byte("ipfs://" + cid)))
}
