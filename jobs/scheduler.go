// Package jobs runs the background maintenance work that does not
// belong in the round engine: expiring stale payment checkouts and
// rotating the provably-fair server seed.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"aviator/service"
)

const (
	expirySchedule     = "*/5 * * * *"
	seedRotateSchedule = "0 3 * * *"
	expiryJobTimeout   = time.Minute
)

// SeedRotator retires the current server seed and returns it so it can
// be published for verification. The weighted strategy has no seed and
// passes nil here.
type SeedRotator interface {
	RotateSeed() string
}

// Scheduler owns the cron jobs around the game engine
type Scheduler struct {
	cron          *cron.Cron
	payments      service.PaymentService
	rotator       SeedRotator
	paymentExpiry time.Duration
}

// NewScheduler creates a scheduler over the payment service and the
// optional seed rotator
func NewScheduler(payments service.PaymentService, rotator SeedRotator, paymentExpiry time.Duration) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		payments:      payments,
		rotator:       rotator,
		paymentExpiry: paymentExpiry,
	}
}

// Start registers and starts all jobs
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(expirySchedule, s.expireStalePayments); err != nil {
		log.WithError(err).Fatal("Failed to register payment expiry job")
	}

	if s.rotator != nil {
		if _, err := s.cron.AddFunc(seedRotateSchedule, s.rotateServerSeed); err != nil {
			log.WithError(err).Fatal("Failed to register seed rotation job")
		}
	}

	s.cron.Start()
	log.Info("Job scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Job scheduler stopped")
}

// expireStalePayments cancels pending payments the provider never
// answered, refunding stale withdrawal escrows
func (s *Scheduler) expireStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), expiryJobTimeout)
	defer cancel()

	expired, err := s.payments.ExpireStalePayments(ctx, s.paymentExpiry)
	if err != nil {
		log.WithError(err).Error("Failed to expire stale payments")
		return
	}
	if expired > 0 {
		log.WithField("expired", expired).Info("Expired stale payments")
	}
}

// rotateServerSeed retires the provably-fair server seed. The retired
// seed is logged so past rounds can be verified against it.
func (s *Scheduler) rotateServerSeed() {
	retired := s.rotator.RotateSeed()
	log.WithField("retired_seed", retired).Info("Rotated server seed")
}
