package infrastructure

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"aviator/models"
)

// resultCodeSuccess is the provider code for money moved
const resultCodeSuccess = 0

var errProviderOffline = errors.New("provider unreachable")

// CallbackFunc receives the provider's verdict for a checkout
type CallbackFunc func(ctx context.Context, checkoutID string, resultCode int, receipt *string) error

// MpesaSandbox simulates the M-Pesa checkout flow for development and
// tests. Every request is accepted with a generated checkout ID and the
// success verdict arrives through the registered callback after a short
// delay, the way the real aggregator delivers verdicts out of band.
type MpesaSandbox struct {
	mu            sync.Mutex
	offline       bool
	callbackDelay time.Duration
	onDeposit     CallbackFunc
	onWithdrawal  CallbackFunc
}

// NewMpesaSandbox creates a sandbox provider that delivers callbacks
// after the given delay
func NewMpesaSandbox(callbackDelay time.Duration) *MpesaSandbox {
	return &MpesaSandbox{callbackDelay: callbackDelay}
}

// OnDeposit registers the handler for deposit verdicts
func (m *MpesaSandbox) OnDeposit(cb CallbackFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onDeposit = cb
}

// OnWithdrawal registers the handler for withdrawal verdicts
func (m *MpesaSandbox) OnWithdrawal(cb CallbackFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onWithdrawal = cb
}

// SetOffline makes subsequent requests fail like a provider outage
func (m *MpesaSandbox) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offline = offline
}

// RequestDeposit accepts a deposit checkout and schedules its callback
func (m *MpesaSandbox) RequestDeposit(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	offline := m.offline
	cb := m.onDeposit
	delay := m.callbackDelay
	m.mu.Unlock()

	if offline {
		return "", models.TransientError{Op: "mpesa deposit request", Err: errProviderOffline}
	}

	checkoutID := newCheckoutID()
	log.WithFields(log.Fields{
		"reference":   reference,
		"amount":      amount.StringFixed(2),
		"checkout_id": checkoutID,
	}).Info("Sandbox deposit checkout created")

	m.deliverLater(cb, checkoutID, delay)
	return checkoutID, nil
}

// RequestWithdrawal accepts a payout checkout and schedules its callback
func (m *MpesaSandbox) RequestWithdrawal(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	offline := m.offline
	cb := m.onWithdrawal
	delay := m.callbackDelay
	m.mu.Unlock()

	if offline {
		return "", models.TransientError{Op: "mpesa withdrawal request", Err: errProviderOffline}
	}

	checkoutID := newCheckoutID()
	log.WithFields(log.Fields{
		"reference":   reference,
		"amount":      amount.StringFixed(2),
		"checkout_id": checkoutID,
	}).Info("Sandbox withdrawal checkout created")

	m.deliverLater(cb, checkoutID, delay)
	return checkoutID, nil
}

func (m *MpesaSandbox) deliverLater(cb CallbackFunc, checkoutID string, delay time.Duration) {
	if cb == nil {
		return
	}

	time.AfterFunc(delay, func() {
		receipt := newReceiptNumber()
		if err := cb(context.Background(), checkoutID, resultCodeSuccess, &receipt); err != nil {
			log.WithError(err).WithField("checkout_id", checkoutID).Error("Sandbox callback failed")
		}
	})
}

// newCheckoutID mimics the provider's checkout request IDs,
// e.g. "ws_CO_0a1b2c3d4e5f60718293"
func newCheckoutID() string {
	return "ws_CO_" + randomHexString(10)
}

// newReceiptNumber mimics M-Pesa receipt numbers, e.g. "QGH0A1B2C3D"
func newReceiptNumber() string {
	return "QGH" + strings.ToUpper(randomHexString(4))
}

func randomHexString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
