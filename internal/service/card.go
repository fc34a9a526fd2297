package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/bank-cards/internal/apperrors"
	"github.com/avolkov/bank-cards/internal/models"
	"github.com/avolkov/bank-cards/internal/utils"
)

const (
	maxCardsPerOwner      = 5
	maxGenerationAttempts = 10
)

// CreateCard issues a new card for the named owner. The encrypted number must
// be globally unique; generation retries up to maxGenerationAttempts times
// before giving up.
func (s *CardService) CreateCard(ctx context.Context, ownerUsername, holder string) (*models.Card, error) {
	owner, err := s.users.FindUserByUsername(ctx, ownerUsername)
	if err != nil {
		return nil, err
	}

	count, err := s.cards.CountCardsByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if count >= maxCardsPerOwner {
		return nil, apperrors.ErrCardLimit
	}

	var number, encrypted string
	unique := false
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		number, err = utils.GenerateCardNumber()
		if err != nil {
			return nil, apperrors.ErrCrypto.With(err)
		}
		encrypted, err = utils.Encrypt(number, s.encryptionKey)
		if err != nil {
			return nil, apperrors.ErrCrypto.With(err)
		}
		exists, err := s.cards.ExistsByEncryptedNumber(ctx, encrypted)
		if err != nil {
			return nil, err
		}
		if !exists {
			unique = true
			break
		}
	}
	if !unique {
		return nil, apperrors.ErrGenerationExhausted
	}

	// Last line of defense against a concurrent insert of the same number;
	// the unique index on the encrypted column is the authoritative guard
	// and surfaces as a conflict from SaveCard.
	exists, err := s.cards.ExistsByEncryptedNumber(ctx, encrypted)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.ErrConflict
	}

	expiry, err := utils.GenerateExpiryDate()
	if err != nil {
		return nil, apperrors.ErrCrypto.With(err)
	}

	card := &models.Card{
		EncryptedNumber: encrypted,
		MaskedNumber:    utils.MaskCardNumber(number),
		Holder:          holder,
		ExpiryDate:      expiry,
		Status:          models.StatusActive,
		Balance:         decimal.Zero,
		OwnerID:         owner.ID,
		CreatedAt:       time.Now(),
	}
	if err := s.cards.SaveCard(ctx, card); err != nil {
		return nil, err
	}

	s.log.Infof("Card %s created for user %s", card.MaskedNumber, ownerUsername)
	return card, nil
}

// GetCard loads a card and enforces that it belongs to the requesting user.
// This ownership check is the sole per-user authorization in the domain;
// administrative operations bypass it by calling the store directly.
func (s *CardService) GetCard(ctx context.Context, cardID int64, username string) (*models.Card, error) {
	card, _, err := s.ownedCard(ctx, cardID, username)
	return card, err
}

func (s *CardService) ownedCard(ctx context.Context, cardID int64, username string) (*models.Card, *models.User, error) {
	card, err := s.cards.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if card.OwnerID != user.ID {
		return nil, nil, apperrors.ErrAccessDenied
	}
	return card, user, nil
}

// BlockCard blocks the user's card. Blocking an already blocked card is an
// error.
func (s *CardService) BlockCard(ctx context.Context, cardID int64, username string) error {
	card, user, err := s.ownedCard(ctx, cardID, username)
	if err != nil {
		return err
	}
	if card.Status == models.StatusBlocked {
		return apperrors.ErrAlreadyBlocked
	}

	card.Status = models.StatusBlocked
	if err := s.cards.SaveCard(ctx, card); err != nil {
		return err
	}

	s.log.Infof("Card %d blocked by user %s", card.ID, username)
	s.notifyBlocked(user, card)
	return nil
}

// ActivateCard sets a card ACTIVE. Administrative: no ownership check and,
// unlike BlockCard, no prior-state check either, so it will resurrect an
// EXPIRED card. The asymmetry is kept on purpose.
func (s *CardService) ActivateCard(ctx context.Context, cardID int64) error {
	card, err := s.cards.FindCardByID(ctx, cardID)
	if err != nil {
		return err
	}

	card.Status = models.StatusActive
	if err := s.cards.SaveCard(ctx, card); err != nil {
		return err
	}

	s.log.Infof("Card %d activated", card.ID)
	return nil
}

// DeleteCard removes a card permanently. Administrative.
func (s *CardService) DeleteCard(ctx context.Context, cardID int64) error {
	if _, err := s.cards.FindCardByID(ctx, cardID); err != nil {
		return err
	}
	if err := s.cards.DeleteCard(ctx, cardID); err != nil {
		return err
	}

	s.log.Infof("Card %d deleted", cardID)
	return nil
}

// Transfer moves amount between two cards of the same user. Both cards must
// be ACTIVE and owned by username. The checks here run on an unlocked
// snapshot and only reject early; the store re-reads both balances under row
// locks and applies the debit/credit pair in the same transaction, so a
// concurrent transfer from the same card cannot overdraw it.
func (s *CardService) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal, username string) error {
	if amount.Sign() <= 0 {
		return apperrors.ErrInvalidAmount
	}

	from, _, err := s.ownedCard(ctx, fromID, username)
	if err != nil {
		return err
	}
	to, _, err := s.ownedCard(ctx, toID, username)
	if err != nil {
		return err
	}

	if from.Status != models.StatusActive || to.Status != models.StatusActive {
		return apperrors.ErrCardNotActive
	}
	if from.Balance.LessThan(amount) {
		return apperrors.ErrInsufficientFunds
	}

	// A transfer onto itself passes every check and nets to zero, so it is
	// a no-op rather than a double mutation of the same row.
	if fromID == toID {
		return nil
	}

	if err := s.cards.TransferFunds(ctx, fromID, toID, amount); err != nil {
		return err
	}

	s.log.Infof("Transferred %s from card %d to card %d for user %s", amount.String(), fromID, toID, username)
	return nil
}

// SweepExpired marks every card whose expiry date lies strictly before today
// as EXPIRED. Intended to run periodically; cards created mid-sweep may be
// picked up on the next run.
func (s *CardService) SweepExpired(ctx context.Context) error {
	// Expiry is a calendar date; compare date components so "today" follows
	// the server's local date regardless of the timezone the stored value
	// carries.
	today := truncateToDate(time.Now())

	cards, err := s.cards.FindAllCards(ctx)
	if err != nil {
		return err
	}

	for _, card := range cards {
		if card.Status == models.StatusExpired || !truncateToDate(card.ExpiryDate).Before(today) {
			continue
		}
		card.Status = models.StatusExpired
		if err := s.cards.SaveCard(ctx, card); err != nil {
			return err
		}
		s.log.Infof("Card %d expired", card.ID)
		s.notifyExpired(ctx, card)
	}
	return nil
}

// ListAll returns one page over every card in the system. Administrative.
func (s *CardService) ListAll(ctx context.Context, opts models.PageOptions) (*models.CardPage, error) {
	cards, total, err := s.cards.FindCardsPage(ctx, opts)
	if err != nil {
		return nil, err
	}
	return models.NewCardPage(cards, opts, total), nil
}

// ListForOwner returns one page of the named user's cards, newest first.
func (s *CardService) ListForOwner(ctx context.Context, username string, opts models.PageOptions) (*models.CardPage, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	cards, total, err := s.cards.FindCardsByOwner(ctx, user.ID, opts)
	if err != nil {
		return nil, err
	}
	return models.NewCardPage(cards, opts, total), nil
}

// ListActiveForOwner returns the named user's ACTIVE cards.
func (s *CardService) ListActiveForOwner(ctx context.Context, username string) ([]*models.Card, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.cards.FindActiveCardsByOwner(ctx, user.ID)
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *CardService) notifyBlocked(owner *models.User, card *models.Card) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendCardBlocked(owner.Email, owner.Username, card.MaskedNumber); err != nil {
		s.log.Errorf("Failed to send block notification for card %d: %v", card.ID, err)
	}
}

func (s *CardService) notifyExpired(ctx context.Context, card *models.Card) {
	if s.notifier == nil {
		return
	}
	owner, err := s.users.FindUserByID(ctx, card.OwnerID)
	if err != nil {
		s.log.Errorf("Failed to resolve owner of card %d: %v", card.ID, err)
		return
	}
	if err := s.notifier.SendCardExpired(owner.Email, owner.Username, card.MaskedNumber); err != nil {
		s.log.Errorf("Failed to send expiry notification for card %d: %v", card.ID, err)
	}
}
