package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// userService implements the UserService interface
type userService struct {
	uowFactory   UnitOfWorkFactory
	welcomeBonus decimal.Decimal
}

// NewUserService creates a new user service. Every new registration gets
// welcomeBonus credited to the bonus balance.
func NewUserService(uowFactory UnitOfWorkFactory, welcomeBonus decimal.Decimal) UserService {
	return &userService{
		uowFactory:   uowFactory,
		welcomeBonus: welcomeBonus,
	}
}

// GetOrCreateUser retrieves an existing user or registers a new one with
// the welcome bonus
func (s *userService) GetOrCreateUser(ctx context.Context, phoneNumber, username string) (*models.User, error) {
	if err := models.ValidatePhoneNumber(phoneNumber); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, models.ValidationError{Field: "username", Reason: "must not be empty"}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	user, err := uow.UserRepository().GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	// Register with zero balances; the bonus arrives as a ledger entry so
	// the money trail starts at the very first credit
	user, err = uow.UserRepository().Create(ctx, phoneNumber, username, decimal.Zero, decimal.Zero)
	if err != nil {
		if models.IsIntegrity(err) {
			// Lost a registration race; the winner's row is what we want
			return s.getByPhone(ctx, phoneNumber)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.welcomeBonus.IsPositive() {
		_, err = ApplyLedgerEntry(ctx, uow, ApplyParams{
			UserID:      user.ID,
			Type:        models.TransactionTypeBonus,
			Amount:      s.welcomeBonus,
			Reference:   NewGameReference(),
			Description: "welcome bonus",
			ToBonus:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to grant welcome bonus: %w", err)
		}
		user.BonusBalance = user.BonusBalance.Add(s.welcomeBonus)
	}

	uow.EventBus().Publish(events.UserCreatedEvent{
		UserID:       user.ID,
		PhoneNumber:  user.PhoneNumber,
		Username:     user.Username,
		WelcomeBonus: s.welcomeBonus.StringFixed(2),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by ID
func (s *userService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetBalance returns the primary, bonus and total balance of a user
func (s *userService) GetBalance(ctx context.Context, userID int64) (primary, bonus, total decimal.Decimal, err error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, models.ValidationError{Field: "user_id", Reason: "user does not exist"}
	}
	return user.Balance, user.BonusBalance, user.TotalBalance(), nil
}

func (s *userService) getByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user with phone %s not found after registration race", phoneNumber)
	}
	return user, nil
}
