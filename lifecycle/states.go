package lifecycle

import (
	"fmt"

	"mintgate/models"
)

var allowedModeration = map[models.ModerationStatus][]models.ModerationStatus{
	models.ModerationPending:  {models.ModerationApproved, models.ModerationRejected},
	models.ModerationApproved: {models.ModerationRejected},
	models.ModerationRejected: {models.ModerationApproved},
}

var allowedPayment = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentUnpaid: {models.PaymentPaid},
}

var allowedMint = map[models.MintStatus][]models.MintStatus{
	models.MintPending: {models.MintMinted},
}

// ValidateModeration ensures a moderation decision follows the defined state
// machine. Re-applying the current state is a no-op, not an error.
func ValidateModeration(current, next models.ModerationStatus) error {
	if current == next {
		return nil
	}
	for _, state := range allowedModeration[current] {
		if state == next {
			return nil
		}
	}
	return fmt.Errorf("moderation transition from %s to %s is not permitted", current, next)
}

// ValidatePayment ensures a payment transition is legal.
func ValidatePayment(current, next models.PaymentStatus) error {
	if current == next {
		return nil
	}
	for _, state := range allowedPayment[current] {
		if state == next {
			return nil
		}
	}
	return fmt.Errorf("payment transition from %s to %s is not permitted", current, next)
}

// ValidateMint ensures a mint transition is legal. Minting additionally
// requires the payment axis to read paid; that cross-axis invariant is
// enforced here so it cannot be skipped by individual handlers.
func ValidateMint(current, next models.MintStatus, payment models.PaymentStatus) error {
	if current == next {
		return nil
	}
	if next == models.MintMinted && payment != models.PaymentPaid {
		return fmt.Errorf("mint requires payment to be %s", models.PaymentPaid)
	}
	for _, state := range allowedMint[current] {
		if state == next {
			return nil
		}
	}
	return fmt.Errorf("mint transition from %s to %s is not permitted", current, next)
}
