package service

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bank-cards/internal/apperrors"
	"github.com/avolkov/bank-cards/internal/models"
	"github.com/avolkov/bank-cards/internal/utils"
)

const testKey = "test-encryption-key"

// fakeCardStore is an in-memory CardStore. It returns copies the way a real
// store would, so mutations only become visible through Save.
type fakeCardStore struct {
	cards          map[int64]*models.Card
	nextID         int64
	existsAll      bool // force every uniqueness check to report a collision
	existsCalls    int
	savedIDs       []int64
	saveErr        error
	transferErr    error
	beforeTransfer func() // runs at the start of the atomic transfer unit
}

func newFakeCardStore() *fakeCardStore {
	return &fakeCardStore{cards: make(map[int64]*models.Card), nextID: 1}
}

func cloneCard(c *models.Card) *models.Card {
	out := *c
	return &out
}

func (f *fakeCardStore) put(card *models.Card) *models.Card {
	if card.ID == 0 {
		card.ID = f.nextID
		f.nextID++
	}
	f.cards[card.ID] = cloneCard(card)
	return card
}

func (f *fakeCardStore) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	card, ok := f.cards[id]
	if !ok {
		return nil, apperrors.ErrCardNotFound
	}
	return cloneCard(card), nil
}

func (f *fakeCardStore) FindCardsByOwner(_ context.Context, ownerID int64, opts models.PageOptions) ([]*models.Card, int64, error) {
	var out []*models.Card
	for _, card := range f.cards {
		if card.OwnerID == ownerID {
			out = append(out, cloneCard(card))
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeCardStore) FindActiveCardsByOwner(_ context.Context, ownerID int64) ([]*models.Card, error) {
	var out []*models.Card
	for _, card := range f.cards {
		if card.OwnerID == ownerID && card.Status == models.StatusActive {
			out = append(out, cloneCard(card))
		}
	}
	return out, nil
}

func (f *fakeCardStore) ExistsByEncryptedNumber(_ context.Context, encrypted string) (bool, error) {
	f.existsCalls++
	if f.existsAll {
		return true, nil
	}
	for _, card := range f.cards {
		if card.EncryptedNumber == encrypted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCardStore) CountCardsByOwner(_ context.Context, ownerID int64) (int64, error) {
	var count int64
	for _, card := range f.cards {
		if card.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (f *fakeCardStore) SaveCard(_ context.Context, card *models.Card) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.put(card)
	f.savedIDs = append(f.savedIDs, card.ID)
	return nil
}

// TransferFunds mirrors the store contract: it re-reads current state inside
// the unit, re-checks statuses and funds, and applies both legs or neither.
func (f *fakeCardStore) TransferFunds(_ context.Context, fromID, toID int64, amount decimal.Decimal) error {
	if f.beforeTransfer != nil {
		f.beforeTransfer()
	}
	if f.transferErr != nil {
		return f.transferErr
	}
	from, ok := f.cards[fromID]
	if !ok {
		return apperrors.ErrCardNotFound
	}
	to, ok := f.cards[toID]
	if !ok {
		return apperrors.ErrCardNotFound
	}
	if from.Status != models.StatusActive || to.Status != models.StatusActive {
		return apperrors.ErrCardNotActive
	}
	if from.Balance.LessThan(amount) {
		return apperrors.ErrInsufficientFunds
	}
	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	return nil
}

func (f *fakeCardStore) DeleteCard(_ context.Context, id int64) error {
	if _, ok := f.cards[id]; !ok {
		return apperrors.ErrCardNotFound
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeCardStore) FindAllCards(_ context.Context) ([]*models.Card, error) {
	var out []*models.Card
	for _, card := range f.cards {
		out = append(out, cloneCard(card))
	}
	return out, nil
}

func (f *fakeCardStore) FindCardsPage(_ context.Context, opts models.PageOptions) ([]*models.Card, int64, error) {
	cards, err := f.FindAllCards(context.Background())
	if err != nil {
		return nil, 0, err
	}
	return cards, int64(len(cards)), nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		f.users[u.Username] = u
	}
	return f
}

func (f *fakeUserStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeUserStore) CreateUser(_ context.Context, user *models.User) error {
	user.ID = int64(len(f.users) + 1)
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserStore) ExistsUserByUsername(_ context.Context, username string) (bool, error) {
	_, ok := f.users[username]
	return ok, nil
}

func (f *fakeUserStore) ExistsUserByEmail(_ context.Context, email string) (bool, error) {
	for _, user := range f.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testUser(id int64, username string) *models.User {
	return &models.User{ID: id, Username: username, Email: username + "@example.com", Role: models.RoleUser}
}

func newTestService(cards *fakeCardStore, users *fakeUserStore) *CardService {
	return NewCardService(cards, users, nil, testLogger(), testKey)
}

func seedCard(store *fakeCardStore, ownerID int64, status models.CardStatus, balance string) *models.Card {
	card := &models.Card{
		EncryptedNumber: "enc-" + balance + "-" + string(status) + "-" + time.Now().String(),
		MaskedNumber:    "**** **** **** 0002",
		Holder:          "TEST HOLDER",
		ExpiryDate:      time.Now().AddDate(3, 0, 0),
		Status:          status,
		Balance:         decimal.RequireFromString(balance),
		OwnerID:         ownerID,
		CreatedAt:       time.Now(),
	}
	return store.put(card)
}

func TestCreateCard(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	svc := newTestService(cards, users)

	card, err := svc.CreateCard(context.Background(), "ivan", "IVAN PETROV")
	if err != nil {
		t.Fatalf("CreateCard() error: %v", err)
	}

	if card.Status != models.StatusActive {
		t.Errorf("status = %s, want ACTIVE", card.Status)
	}
	if !card.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", card.Balance)
	}
	if card.OwnerID != 1 {
		t.Errorf("owner = %d, want 1", card.OwnerID)
	}
	if !card.ExpiryDate.After(time.Now()) {
		t.Errorf("expiry %v not in the future", card.ExpiryDate)
	}

	maskRe := regexp.MustCompile(`^\*\*\*\* \*\*\*\* \*\*\*\* \d{4}$`)
	if !maskRe.MatchString(card.MaskedNumber) {
		t.Errorf("masked number %q does not match pattern", card.MaskedNumber)
	}

	number, err := utils.Decrypt(card.EncryptedNumber, testKey)
	if err != nil {
		t.Fatalf("stored number does not decrypt: %v", err)
	}
	if !utils.ValidateCardNumber(number) {
		t.Errorf("stored number %q fails Luhn validation", number)
	}
	if number[12:] != card.MaskedNumber[15:] {
		t.Errorf("mask tail %q does not match number tail %q", card.MaskedNumber[15:], number[12:])
	}
}

func TestCreateCardOwnerNotFound(t *testing.T) {
	svc := newTestService(newFakeCardStore(), newFakeUserStore())

	_, err := svc.CreateCard(context.Background(), "ghost", "GHOST")
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateCardLimitReached(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	for i := 0; i < 5; i++ {
		seedCard(cards, 1, models.StatusActive, "0.00")
	}
	svc := newTestService(cards, users)

	_, err := svc.CreateCard(context.Background(), "ivan", "IVAN PETROV")
	if !errors.Is(err, apperrors.ErrCardLimit) {
		t.Fatalf("err = %v, want ErrCardLimit", err)
	}
	if len(cards.cards) != 5 {
		t.Errorf("card count = %d after rejected create, want 5", len(cards.cards))
	}
}

func TestCreateCardExhaustsRetries(t *testing.T) {
	cards := newFakeCardStore()
	cards.existsAll = true
	users := newFakeUserStore(testUser(1, "ivan"))
	svc := newTestService(cards, users)

	_, err := svc.CreateCard(context.Background(), "ivan", "IVAN PETROV")
	if !errors.Is(err, apperrors.ErrGenerationExhausted) {
		t.Fatalf("err = %v, want ErrGenerationExhausted", err)
	}
	if cards.existsCalls != 10 {
		t.Errorf("uniqueness checks = %d, want 10", cards.existsCalls)
	}
	if len(cards.savedIDs) != 0 {
		t.Errorf("cards persisted despite exhausted retries: %v", cards.savedIDs)
	}
}

func TestGetCardAccessDenied(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"), testUser(2, "mallory"))
	card := seedCard(cards, 1, models.StatusActive, "100.00")
	svc := newTestService(cards, users)

	if _, err := svc.GetCard(context.Background(), card.ID, "ivan"); err != nil {
		t.Fatalf("owner access failed: %v", err)
	}
	_, err := svc.GetCard(context.Background(), card.ID, "mallory")
	if !errors.Is(err, apperrors.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestGetCardNotFound(t *testing.T) {
	svc := newTestService(newFakeCardStore(), newFakeUserStore(testUser(1, "ivan")))

	_, err := svc.GetCard(context.Background(), 42, "ivan")
	if !errors.Is(err, apperrors.ErrCardNotFound) {
		t.Errorf("err = %v, want ErrCardNotFound", err)
	}
}

func TestBlockCard(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	card := seedCard(cards, 1, models.StatusActive, "100.00")
	svc := newTestService(cards, users)

	if err := svc.BlockCard(context.Background(), card.ID, "ivan"); err != nil {
		t.Fatalf("BlockCard() error: %v", err)
	}
	if got := cards.cards[card.ID].Status; got != models.StatusBlocked {
		t.Fatalf("status = %s, want BLOCKED", got)
	}

	err := svc.BlockCard(context.Background(), card.ID, "ivan")
	if !errors.Is(err, apperrors.ErrAlreadyBlocked) {
		t.Errorf("second block err = %v, want ErrAlreadyBlocked", err)
	}
}

func TestActivateCardHasNoPriorStateCheck(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	svc := newTestService(cards, users)

	// Activation is unconditional, so even an EXPIRED card comes back.
	blocked := seedCard(cards, 1, models.StatusBlocked, "0.00")
	expired := seedCard(cards, 1, models.StatusExpired, "0.00")

	for _, card := range []*models.Card{blocked, expired} {
		if err := svc.ActivateCard(context.Background(), card.ID); err != nil {
			t.Fatalf("ActivateCard(%d) error: %v", card.ID, err)
		}
		if got := cards.cards[card.ID].Status; got != models.StatusActive {
			t.Errorf("card %d status = %s, want ACTIVE", card.ID, got)
		}
	}

	if err := svc.ActivateCard(context.Background(), 999); !errors.Is(err, apperrors.ErrCardNotFound) {
		t.Errorf("err = %v, want ErrCardNotFound", err)
	}
}

func TestTransfer(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	from := seedCard(cards, 1, models.StatusActive, "1000.00")
	to := seedCard(cards, 1, models.StatusActive, "500.00")
	svc := newTestService(cards, users)

	err := svc.Transfer(context.Background(), from.ID, to.ID, decimal.RequireFromString("200.00"), "ivan")
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	gotFrom := cards.cards[from.ID].Balance
	gotTo := cards.cards[to.ID].Balance
	if !gotFrom.Equal(decimal.RequireFromString("800.00")) {
		t.Errorf("from balance = %s, want 800.00", gotFrom)
	}
	if !gotTo.Equal(decimal.RequireFromString("700.00")) {
		t.Errorf("to balance = %s, want 700.00", gotTo)
	}
	if sum := gotFrom.Add(gotTo); !sum.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("balance sum = %s, want 1500.00", sum)
	}
}

func TestTransferInvalidAmount(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	from := seedCard(cards, 1, models.StatusActive, "1000.00")
	to := seedCard(cards, 1, models.StatusActive, "500.00")
	svc := newTestService(cards, users)

	for _, amount := range []string{"0", "-5.00"} {
		err := svc.Transfer(context.Background(), from.ID, to.ID, decimal.RequireFromString(amount), "ivan")
		if !errors.Is(err, apperrors.ErrInvalidAmount) {
			t.Errorf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if !cards.cards[from.ID].Balance.Equal(decimal.RequireFromString("1000.00")) ||
		!cards.cards[to.ID].Balance.Equal(decimal.RequireFromString("500.00")) {
		t.Error("balances changed on rejected transfer")
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	from := seedCard(cards, 1, models.StatusActive, "100.00")
	to := seedCard(cards, 1, models.StatusActive, "0.00")
	svc := newTestService(cards, users)

	err := svc.Transfer(context.Background(), from.ID, to.ID, decimal.RequireFromString("100.01"), "ivan")
	if !errors.Is(err, apperrors.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if !cards.cards[from.ID].Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Error("source balance changed on rejected transfer")
	}
}

func TestTransferRequiresActiveCards(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	active := seedCard(cards, 1, models.StatusActive, "1000.00")
	blocked := seedCard(cards, 1, models.StatusBlocked, "500.00")
	svc := newTestService(cards, users)

	amount := decimal.RequireFromString("10.00")
	if err := svc.Transfer(context.Background(), active.ID, blocked.ID, amount, "ivan"); !errors.Is(err, apperrors.ErrCardNotActive) {
		t.Errorf("to blocked: err = %v, want ErrCardNotActive", err)
	}
	if err := svc.Transfer(context.Background(), blocked.ID, active.ID, amount, "ivan"); !errors.Is(err, apperrors.ErrCardNotActive) {
		t.Errorf("from blocked: err = %v, want ErrCardNotActive", err)
	}
}

func TestTransferForeignCardDenied(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"), testUser(2, "mallory"))
	mine := seedCard(cards, 1, models.StatusActive, "1000.00")
	theirs := seedCard(cards, 2, models.StatusActive, "500.00")
	svc := newTestService(cards, users)

	err := svc.Transfer(context.Background(), mine.ID, theirs.ID, decimal.RequireFromString("10.00"), "ivan")
	if !errors.Is(err, apperrors.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestTransferToSameCardIsNoOp(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	card := seedCard(cards, 1, models.StatusActive, "1000.00")
	svc := newTestService(cards, users)

	if err := svc.Transfer(context.Background(), card.ID, card.ID, decimal.RequireFromString("200.00"), "ivan"); err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if !cards.cards[card.ID].Balance.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("balance = %s after self transfer, want 1000.00", cards.cards[card.ID].Balance)
	}
}

// A transfer whose funds check ran on a stale snapshot must fail once a
// concurrent transfer drains the source card: the balance re-check happens
// inside the atomic unit, so two debits can never both spend the same funds.
func TestTransferRecheckInsideAtomicUnit(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	source := seedCard(cards, 1, models.StatusActive, "150.00")
	first := seedCard(cards, 1, models.StatusActive, "0.00")
	second := seedCard(cards, 1, models.StatusActive, "0.00")
	svc := newTestService(cards, users)

	amount := decimal.RequireFromString("100.00")
	interleaved := false
	cards.beforeTransfer = func() {
		// Simulates a competing transfer committing after the outer
		// transfer passed its snapshot checks but before its unit runs.
		if interleaved {
			return
		}
		interleaved = true
		if err := svc.Transfer(context.Background(), source.ID, second.ID, amount, "ivan"); err != nil {
			t.Fatalf("competing transfer failed: %v", err)
		}
	}

	err := svc.Transfer(context.Background(), source.ID, first.ID, amount, "ivan")
	if !errors.Is(err, apperrors.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	gotSource := cards.cards[source.ID].Balance
	gotFirst := cards.cards[first.ID].Balance
	gotSecond := cards.cards[second.ID].Balance
	if !gotFirst.IsZero() {
		t.Errorf("first target balance = %s, want 0", gotFirst)
	}
	if !gotSecond.Equal(amount) {
		t.Errorf("second target balance = %s, want 100.00", gotSecond)
	}
	sum := gotSource.Add(gotFirst).Add(gotSecond)
	if !sum.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("balance sum = %s, want 150.00", sum)
	}
}

func TestTransferFailedUnitLeavesBalancesUnchanged(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	from := seedCard(cards, 1, models.StatusActive, "1000.00")
	to := seedCard(cards, 1, models.StatusActive, "500.00")
	cards.transferErr = errors.New("deadlock detected")
	svc := newTestService(cards, users)

	err := svc.Transfer(context.Background(), from.ID, to.ID, decimal.RequireFromString("200.00"), "ivan")
	if err == nil {
		t.Fatal("Transfer() succeeded, want store error")
	}
	if !cards.cards[from.ID].Balance.Equal(decimal.RequireFromString("1000.00")) ||
		!cards.cards[to.ID].Balance.Equal(decimal.RequireFromString("500.00")) {
		t.Error("balances changed although the atomic unit failed")
	}
}

func TestSweepExpired(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	svc := newTestService(cards, users)

	expired := seedCard(cards, 1, models.StatusActive, "0.00")
	expired.ExpiryDate = time.Now().AddDate(0, 0, -1)
	cards.put(expired)
	fresh := seedCard(cards, 1, models.StatusActive, "0.00")
	alreadyExpired := seedCard(cards, 1, models.StatusExpired, "0.00")
	alreadyExpired.ExpiryDate = time.Now().AddDate(0, 0, -100)
	cards.put(alreadyExpired)

	savedBefore := len(cards.savedIDs)
	if err := svc.SweepExpired(context.Background()); err != nil {
		t.Fatalf("SweepExpired() error: %v", err)
	}

	if got := cards.cards[expired.ID].Status; got != models.StatusExpired {
		t.Errorf("expired card status = %s, want EXPIRED", got)
	}
	if got := cards.cards[fresh.ID].Status; got != models.StatusActive {
		t.Errorf("fresh card status = %s, want ACTIVE", got)
	}
	saved := cards.savedIDs[savedBefore:]
	if len(saved) != 1 || saved[0] != expired.ID {
		t.Errorf("sweep persisted %v, want only card %d", saved, expired.ID)
	}
}

func TestDeleteCard(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	card := seedCard(cards, 1, models.StatusActive, "0.00")
	svc := newTestService(cards, users)

	if err := svc.DeleteCard(context.Background(), card.ID); err != nil {
		t.Fatalf("DeleteCard() error: %v", err)
	}
	if _, ok := cards.cards[card.ID]; ok {
		t.Error("card still present after delete")
	}

	if err := svc.DeleteCard(context.Background(), card.ID); !errors.Is(err, apperrors.ErrCardNotFound) {
		t.Errorf("err = %v, want ErrCardNotFound", err)
	}
}

func TestListActiveForOwner(t *testing.T) {
	cards := newFakeCardStore()
	users := newFakeUserStore(testUser(1, "ivan"))
	seedCard(cards, 1, models.StatusActive, "0.00")
	seedCard(cards, 1, models.StatusBlocked, "0.00")
	seedCard(cards, 2, models.StatusActive, "0.00")
	svc := newTestService(cards, users)

	active, err := svc.ListActiveForOwner(context.Background(), "ivan")
	if err != nil {
		t.Fatalf("ListActiveForOwner() error: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active cards = %d, want 1", len(active))
	}
}
