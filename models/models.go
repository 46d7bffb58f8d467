package models

import (
	"time"

	"gorm.io/gorm"
)

// ModerationStatus is the administrator-controlled approval axis of a submission.
type ModerationStatus string

// PaymentStatus tracks whether the fixed mint fee has cleared.
type PaymentStatus string

// MintStatus tracks whether the submission's token has been minted on the ledger.
type MintStatus string

// All lifecycle states, one closed set per axis.
const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"

	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"

	MintPending MintStatus = "pending"
	MintMinted  MintStatus = "minted"
)

// Submission is one creator artwork batch moving through moderation, payment,
// and mint. The three status axes are independent; delisting is orthogonal to
// all of them.
type Submission struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	CreatorWallet string           `gorm:"size:64;index;not null" json:"creator_wallet"`
	Name          string           `gorm:"size:256" json:"name"`
	Description   string           `gorm:"type:text" json:"description"`
	ImageCID      string           `gorm:"size:128" json:"image_cid"`
	MetadataCID   string           `gorm:"size:128;not null" json:"metadata_cid"`
	BatchQty      int              `gorm:"not null" json:"batch_qty"`
	Moderation    ModerationStatus `gorm:"size:16;index;default:pending" json:"moderation_status"`
	Payment       PaymentStatus    `gorm:"size:16;index;default:unpaid" json:"payment_status"`
	Mint          MintStatus       `gorm:"size:16;index;default:pending" json:"mint_status"`
	Delisted      bool             `gorm:"default:false" json:"is_delisted"`

	// Correlation ids for the outstanding signing sessions. Confirmation
	// callbacks are rejected unless they carry the stored id.
	PaymentSessionID string `gorm:"size:64;index" json:"payment_session_id,omitempty"`
	MintSessionID    string `gorm:"size:64;index" json:"mint_session_id,omitempty"`

	Terms           string `gorm:"type:text" json:"terms,omitempty"`
	PriceXRP        string `gorm:"size:32" json:"price_xrp,omitempty"`
	PriceRLUSD      string `gorm:"size:32" json:"price_rlusd,omitempty"`
	Email           string `gorm:"size:256" json:"email,omitempty"`
	Website         string `gorm:"size:256" json:"website,omitempty"`
	RejectionReason string `gorm:"size:512" json:"rejection_reason,omitempty"`

	// Set after mint confirmation when the ledger lookup succeeds.
	TokenID           string `gorm:"size:128" json:"token_id,omitempty"`
	SentToMarketplace bool   `gorm:"default:false" json:"sent_to_marketplace"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RewardEntry is one learner action in the learn-to-earn ledger. The composite
// key dedups replays: inserting the same tuple twice violates the unique index
// and the engine treats that as "already recorded".
type RewardEntry struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Wallet       string  `gorm:"size:64;not null;uniqueIndex:idx_reward_key" json:"wallet"`
	SubmissionID uint    `gorm:"not null;uniqueIndex:idx_reward_key" json:"submission_id"`
	ActionType   string  `gorm:"size:32;not null;uniqueIndex:idx_reward_key" json:"action_type"`
	ActionRef    string  `gorm:"size:128;not null;uniqueIndex:idx_reward_key" json:"action_ref"`
	TokensEarned float64 `gorm:"not null;default:0" json:"tokens_earned"`
	TokensPaid   float64 `gorm:"not null;default:0" json:"tokens_paid"`
	TxHash       string  `gorm:"size:128" json:"tx_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outstanding returns the unpaid portion of the entry.
func (e *RewardEntry) Outstanding() float64 {
	return e.TokensEarned - e.TokensPaid
}

// Event is the audit trail for submission lifecycle activity.
type Event struct {
	ID           uint      `gorm:"primaryKey"`
	SubmissionID *uint     `gorm:"index"`
	Actor        string    `gorm:"size:64"`
	Action       string    `gorm:"size:64"`
	Details      string    `gorm:"type:text"`
	CreatedAt    time.Time
}

// IdempotencyKey stores request idempotency metadata.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Submission{},
		&RewardEntry{},
		&Event{},
		&IdempotencyKey{},
	)
}
