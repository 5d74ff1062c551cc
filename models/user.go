package models

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var phonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// ValidatePhoneNumber checks the MSISDN format used for registration and
// payments, e.g. 254712345678
func ValidatePhoneNumber(phoneNumber string) error {
	if !phonePattern.MatchString(phoneNumber) {
		return ValidationError{Field: "phone_number", Reason: "must be a 254 mobile number"}
	}
	return nil
}

// User represents a registered player with a split balance
type User struct {
	ID           int64           `db:"id"`
	PhoneNumber  string          `db:"phone_number"`
	Username     string          `db:"username"`
	Balance      decimal.Decimal `db:"balance"`
	BonusBalance decimal.Decimal `db:"bonus_balance"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// TotalBalance returns the primary plus bonus balance. Debits are checked
// against this total; withdrawals only against the primary balance.
func (u *User) TotalBalance() decimal.Decimal {
	return u.Balance.Add(u.BonusBalance)
}

// DebitBonusFirst consumes amount from the bonus balance before touching
// the primary one. The caller persists the result.
func (u *User) DebitBonusFirst(amount decimal.Decimal) error {
	if u.TotalBalance().LessThan(amount) {
		return InsufficientFundsError{Have: u.TotalBalance(), Need: amount}
	}

	fromBonus := decimal.Min(u.BonusBalance, amount)
	u.BonusBalance = u.BonusBalance.Sub(fromBonus)
	u.Balance = u.Balance.Sub(amount.Sub(fromBonus))
	return nil
}

// DebitPrimary consumes amount from the primary balance only. Bonus money
// cannot leave the system, so withdrawals go through here.
func (u *User) DebitPrimary(amount decimal.Decimal) error {
	if u.Balance.LessThan(amount) {
		return InsufficientFundsError{Have: u.Balance, Need: amount}
	}

	u.Balance = u.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the primary balance
func (u *User) Credit(amount decimal.Decimal) {
	u.Balance = u.Balance.Add(amount)
}

// CreditBonus adds amount to the bonus balance
func (u *User) CreditBonus(amount decimal.Decimal) {
	u.BonusBalance = u.BonusBalance.Add(amount)
}
