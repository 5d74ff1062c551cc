package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewPaymentReference returns a reference for deposits and withdrawals,
// e.g. "AV1724630400a1b2c3d4". The timestamp keeps references sortable
// for support lookups; the random suffix keeps them unique.
func NewPaymentReference() string {
	return fmt.Sprintf("AV%d%s", time.Now().Unix(), randomHex(4))
}

// NewGameReference returns a reference for game ledger entries,
// e.g. "TXN0a1b2c3d4e5f6"
func NewGameReference() string {
	return "TXN" + randomHex(6)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
