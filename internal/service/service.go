// Package service holds the business logic of the card system. Storage is
// abstract: the services depend on the CardStore and UserStore interfaces
// below, satisfied in production by the postgres repository.
package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bank-cards/internal/models"
)

// CardStore is the persistence surface the card service needs.
type CardStore interface {
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
	FindCardsByOwner(ctx context.Context, ownerID int64, opts models.PageOptions) ([]*models.Card, int64, error)
	FindActiveCardsByOwner(ctx context.Context, ownerID int64) ([]*models.Card, error)
	ExistsByEncryptedNumber(ctx context.Context, encrypted string) (bool, error)
	CountCardsByOwner(ctx context.Context, ownerID int64) (int64, error)
	SaveCard(ctx context.Context, card *models.Card) error
	// TransferFunds moves amount between two cards as one isolated unit:
	// both rows are locked, statuses and the source balance are re-checked
	// against current state, and the debit/credit pair commits atomically
	// or not at all.
	TransferFunds(ctx context.Context, fromID, toID int64, amount decimal.Decimal) error
	DeleteCard(ctx context.Context, id int64) error
	FindAllCards(ctx context.Context) ([]*models.Card, error)
	FindCardsPage(ctx context.Context, opts models.PageOptions) ([]*models.Card, int64, error)
}

// UserStore resolves users for ownership checks and registration.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	ExistsUserByUsername(ctx context.Context, username string) (bool, error)
	ExistsUserByEmail(ctx context.Context, email string) (bool, error)
}

// Notifier delivers card lifecycle notifications. Implementations are
// best-effort; services log failures and carry on.
type Notifier interface {
	SendCardBlocked(to, username, maskedNumber string) error
	SendCardExpired(to, username, maskedNumber string) error
}

// CardService orchestrates card creation, lifecycle transitions and
// transfers.
type CardService struct {
	cards         CardStore
	users         UserStore
	notifier      Notifier // nil when notifications are not configured
	log           *logrus.Logger
	encryptionKey string
}

// NewCardService initializes the card service.
func NewCardService(cards CardStore, users UserStore, notifier Notifier, log *logrus.Logger, encryptionKey string) *CardService {
	return &CardService{
		cards:         cards,
		users:         users,
		notifier:      notifier,
		log:           log,
		encryptionKey: encryptionKey,
	}
}

// AuthService handles registration and login.
type AuthService struct {
	users     UserStore
	log       *logrus.Logger
	jwtSecret string
}

// NewAuthService initializes the auth service.
func NewAuthService(users UserStore, log *logrus.Logger, jwtSecret string) *AuthService {
	return &AuthService{users: users, log: log, jwtSecret: jwtSecret}
}
