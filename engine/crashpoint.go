package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

// Crash points always land inside this range regardless of strategy
const (
	MinCrashPoint = 1.00
	MaxCrashPoint = 1000.00
)

// houseEdge is the payout factor applied by the provably fair strategy
const houseEdge = 0.97

// Proof carries the inputs that produced a crash point so the round can
// publish them once it has crashed. The zero value means the strategy
// keeps no proof.
type Proof struct {
	ServerSeed string
	ClientSeed string
	Nonce      int64
}

// Empty reports whether the strategy published no proof
func (p Proof) Empty() bool {
	return p.ServerSeed == ""
}

// Generator produces the crash point for a round. It is called exactly
// once per round, before any bet is accepted.
type Generator interface {
	Generate() (decimal.Decimal, Proof)
}

// crashBand is one slice of the weighted crash distribution
type crashBand struct {
	cumulative float64
	low, high  float64
}

// Most rounds crash early; the tail above 20x is rare.
var weightedBands = []crashBand{
	{cumulative: 0.30, low: 1.00, high: 2.00},
	{cumulative: 0.60, low: 2.00, high: 5.00},
	{cumulative: 0.85, low: 5.00, high: 10.00},
	{cumulative: 0.95, low: 10.00, high: 20.00},
	{cumulative: 1.00, low: 20.00, high: 100.00},
}

// WeightedGenerator draws crash points from banded uniform distributions
// weighted towards low multipliers. It publishes no proof.
type WeightedGenerator struct {
	rng func() float64
}

// NewWeightedGenerator creates a weighted generator backed by crypto/rand
func NewWeightedGenerator() *WeightedGenerator {
	return &WeightedGenerator{rng: cryptoUniform}
}

// Generate picks a band by weight, then a uniform point inside it
func (g *WeightedGenerator) Generate() (decimal.Decimal, Proof) {
	band := weightedBands[len(weightedBands)-1]
	r := g.rng()
	for _, b := range weightedBands {
		if r < b.cumulative {
			band = b
			break
		}
	}

	point := band.low + g.rng()*(band.high-band.low)
	return decimal.NewFromFloat(point).Round(2), Proof{}
}

// FairGenerator derives crash points from a seeded SHA-256 digest so any
// published round can be re-verified from its seeds and nonce. The nonce
// increments per round; rotating the server seed restarts it.
type FairGenerator struct {
	mu         sync.Mutex
	serverSeed string
	clientSeed string
	nonce      int64
}

// NewFairGenerator creates a fair generator with a random server seed
func NewFairGenerator(clientSeed string) *FairGenerator {
	return &FairGenerator{
		serverSeed: newServerSeed(),
		clientSeed: clientSeed,
	}
}

// NewFairGeneratorWithSeeds pins both seeds and the starting nonce.
// Used for round verification.
func NewFairGeneratorWithSeeds(serverSeed, clientSeed string, nonce int64) *FairGenerator {
	return &FairGenerator{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

// Generate computes the crash point for the current nonce and advances it
func (g *FairGenerator) Generate() (decimal.Decimal, Proof) {
	g.mu.Lock()
	proof := Proof{
		ServerSeed: g.serverSeed,
		ClientSeed: g.clientSeed,
		Nonce:      g.nonce,
	}
	g.nonce++
	g.mu.Unlock()

	return FairCrashPoint(proof.ServerSeed, proof.ClientSeed, proof.Nonce), proof
}

// RotateSeed replaces the server seed and restarts the nonce sequence.
// Returns the retired seed so it can be published for verification.
func (g *FairGenerator) RotateSeed() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	retired := g.serverSeed
	g.serverSeed = newServerSeed()
	g.nonce = 0
	return retired
}

// FairCrashPoint computes the crash point for one seed pair and nonce.
// The first eight hex digits of SHA-256("server:client:nonce") scale to
// u in [0,1); the point is (100/(1-u)) × 0.97 / 100 clamped to the crash
// range and rounded half-up to two decimals.
func FairCrashPoint(serverSeed, clientSeed string, nonce int64) decimal.Decimal {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", serverSeed, clientSeed, nonce)))
	lead, err := strconv.ParseUint(hex.EncodeToString(digest[:])[:8], 16, 64)
	if err != nil {
		panic(fmt.Sprintf("malformed sha256 hex digest: %v", err))
	}

	u := float64(lead) / float64(uint64(1)<<32)
	point := (100.0 / (1.0 - u)) * houseEdge / 100.0
	if point < MinCrashPoint {
		point = MinCrashPoint
	}
	if point > MaxCrashPoint {
		point = MaxCrashPoint
	}
	return decimal.NewFromFloat(point).Round(2)
}

// cryptoUniform returns a uniform float64 in [0, 1) from crypto/rand
func cryptoUniform() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / float64(uint64(1)<<53)
}

func newServerSeed() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
