package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/avolkov/bank-cards/internal/apperrors"
	"github.com/avolkov/bank-cards/internal/models"
)

// uniqueViolation is the postgres error code raised by duplicate inserts
// against a unique index.
const uniqueViolation = "23505"

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const cardColumns = `id, encrypted_card_number, masked_card_number, card_holder, expiry_date, status, balance, owner_id, created_at`

func scanCard(row interface{ Scan(...any) error }) (*models.Card, error) {
	card := &models.Card{}
	err := row.Scan(&card.ID, &card.EncryptedNumber, &card.MaskedNumber, &card.Holder,
		&card.ExpiryDate, &card.Status, &card.Balance, &card.OwnerID, &card.CreatedAt)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// FindCardByID retrieves a card by id.
func (r *Repository) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE id = $1`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// FindCardsByOwner retrieves one page of the owner's cards, newest first,
// together with the owner's total card count.
func (r *Repository) FindCardsByOwner(ctx context.Context, ownerID int64, opts models.PageOptions) ([]*models.Card, int64, error) {
	opts.Normalize()

	total, err := r.CountCardsByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + cardColumns + `
		FROM bank.cards
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, ownerID, opts.Size, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards, err := collectCards(rows)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// FindActiveCardsByOwner retrieves the owner's ACTIVE cards, newest first.
func (r *Repository) FindActiveCardsByOwner(ctx context.Context, ownerID int64) ([]*models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM bank.cards
		WHERE owner_id = $1 AND status = $2
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// ExistsByEncryptedNumber reports whether any card stores the given
// encrypted number.
func (r *Repository) ExistsByEncryptedNumber(ctx context.Context, encrypted string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM bank.cards WHERE encrypted_card_number = $1)`
	if err := r.db.QueryRowContext(ctx, query, encrypted).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check card number uniqueness: %w", err)
	}
	return exists, nil
}

// CountCardsByOwner returns the number of cards the owner holds.
func (r *Repository) CountCardsByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM bank.cards WHERE owner_id = $1`
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}

// SaveCard inserts a new card (id 0) or re-persists a mutated one. Duplicate
// encrypted numbers surface as apperrors.ErrConflict via the unique index.
func (r *Repository) SaveCard(ctx context.Context, card *models.Card) error {
	if card.ID == 0 {
		query := `
			INSERT INTO bank.cards (encrypted_card_number, masked_card_number, card_holder, expiry_date, status, balance, owner_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
			RETURNING id, created_at`
		err := r.db.QueryRowContext(ctx, query,
			card.EncryptedNumber, card.MaskedNumber, card.Holder, card.ExpiryDate,
			card.Status, card.Balance, card.OwnerID).
			Scan(&card.ID, &card.CreatedAt)
		if isUniqueViolation(err) {
			return apperrors.ErrConflict.With(err)
		}
		if err != nil {
			return fmt.Errorf("failed to create card: %w", err)
		}
		return nil
	}

	query := `
		UPDATE bank.cards
		SET masked_card_number = $2, card_holder = $3, expiry_date = $4, status = $5, balance = $6
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		card.ID, card.MaskedNumber, card.Holder, card.ExpiryDate, card.Status, card.Balance)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrCardNotFound
	}
	return nil
}

// TransferFunds applies a debit/credit pair as one isolated unit. Both rows
// are locked in ascending id order (so opposing transfers cannot deadlock),
// statuses and the source balance are re-read under the locks, and the two
// relative updates commit together or roll back together.
func (r *Repository) TransferFunds(ctx context.Context, fromID, toID int64, amount decimal.Decimal) error {
	ids := []int64{fromID, toID}
	if toID < fromID {
		ids[0], ids[1] = toID, fromID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT id, status, balance FROM bank.cards WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, lockQuery, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to lock cards: %w", err)
	}
	type lockedCard struct {
		status  models.CardStatus
		balance decimal.Decimal
	}
	locked := make(map[int64]lockedCard, 2)
	for rows.Next() {
		var id int64
		var lc lockedCard
		if err := rows.Scan(&id, &lc.status, &lc.balance); err != nil {
			rows.Close()
			return fmt.Errorf("failed to lock cards: %w", err)
		}
		locked[id] = lc
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to lock cards: %w", err)
	}

	from, ok := locked[fromID]
	if !ok {
		return apperrors.ErrCardNotFound
	}
	to, ok := locked[toID]
	if !ok {
		return apperrors.ErrCardNotFound
	}
	if from.status != models.StatusActive || to.status != models.StatusActive {
		return apperrors.ErrCardNotActive
	}
	if from.balance.LessThan(amount) {
		return apperrors.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bank.cards SET balance = balance - $2 WHERE id = $1`, fromID, amount); err != nil {
		return fmt.Errorf("failed to debit card %d: %w", fromID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bank.cards SET balance = balance + $2 WHERE id = $1`, toID, amount); err != nil {
		return fmt.Errorf("failed to credit card %d: %w", toID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// DeleteCard removes a card permanently.
func (r *Repository) DeleteCard(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrCardNotFound
	}
	return nil
}

// FindAllCards retrieves every card without pagination. Used by the expiry
// sweep, which tolerates cards created mid-iteration being missed.
func (r *Repository) FindAllCards(ctx context.Context) ([]*models.Card, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM bank.cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// FindCardsPage retrieves one page over all cards, newest first.
func (r *Repository) FindCardsPage(ctx context.Context, opts models.PageOptions) ([]*models.Card, int64, error) {
	opts.Normalize()

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}

	query := `
		SELECT ` + cardColumns + `
		FROM bank.cards
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, opts.Size, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards, err := collectCards(rows)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

func collectCards(rows *sql.Rows) ([]*models.Card, error) {
	var cards []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return cards, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
