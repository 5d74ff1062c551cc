package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus represents where a round is in its lifecycle
type RoundStatus string

const (
	RoundStatusWaiting RoundStatus = "waiting"
	RoundStatusFlying  RoundStatus = "flying"
	RoundStatusCrashed RoundStatus = "crashed"
)

// Round represents one crash-game round from creation to settlement.
// The crash point is assigned at creation and never changes; it is not
// shown to clients until the round has crashed.
type Round struct {
	ID          int64           `db:"id"`
	RoundNumber int64           `db:"round_number"`
	Status      RoundStatus     `db:"status"`
	Multiplier  decimal.Decimal `db:"multiplier"`
	CrashPoint  decimal.Decimal `db:"crash_point"`
	ServerSeed  *string         `db:"server_seed"`
	ClientSeed  *string         `db:"client_seed"`
	Nonce       *int64          `db:"nonce"`
	StartTime   *time.Time      `db:"start_time"`
	EndTime     *time.Time      `db:"end_time"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// RoundSnapshot is the read-only view of the running round handed to
// broadcasters and request handlers. Monetary values are fixed-point
// decimal strings. CrashPoint is empty until the round has crashed.
type RoundSnapshot struct {
	RoundNumber int64       `json:"round_number"`
	Status      RoundStatus `json:"status"`
	Multiplier  string      `json:"multiplier"`
	CrashPoint  string      `json:"crash_point,omitempty"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
