// Package biller paces ingestion at a configured claims-per-second rate and
// tracks the return address each forwarded claim needs so its eventual
// remittance can find its way back.
//
// Grounded on the teacher repo's paymentQueue/paymentForwarder worker-pool
// shape (api/gateway/gateway.go): a bounded channel drained by forwarder
// logic, generalized here to a single rate-paced forwarder plus a
// uuid-keyed return-handle table instead of an HTTP round trip.
package biller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"claimflow/model"
)

// ReturnHandle is the opaque delivery slot the Clearinghouse uses to route a
// Remittance back to its originating Biller, without knowing anything about
// the Biller's internals.
type ReturnHandle interface {
	ID() uuid.UUID
	Deliver(model.Remittance)
}

// Submission bundles a Claim with the return handle the Clearinghouse must
// use once it has a Remittance for it.
type Submission struct {
	Claim  model.Claim
	Handle ReturnHandle
}

// slot is the concrete ReturnHandle implementation: a single-use delivery
// point that also lets the Biller track outstanding work via wg.
type slot struct {
	id uuid.UUID
	wg *sync.WaitGroup
}

func (s *slot) ID() uuid.UUID { return s.id }

// Deliver marks this claim's round trip complete. The ledger write already
// happened inside the Clearinghouse before Deliver was called; this slot
// exists purely for return-address correlation and drain tracking.
func (s *slot) Deliver(model.Remittance) {
	s.wg.Done()
}

// Biller consumes claims from in, paces them at rate claims/second, and
// forwards them to out as Submissions.
type Biller struct {
	limiter       *rate.Limiter
	drainDeadline time.Duration
	logger        zerolog.Logger

	wg sync.WaitGroup
}

// New constructs a Biller that paces forwarding to ratePerSecond
// claims/second (burst 1) and allows drainDeadline for outstanding return
// slots to resolve once ingestion closes.
func New(ratePerSecond float64, drainDeadline time.Duration, logger zerolog.Logger) *Biller {
	return &Biller{
		limiter:       rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		drainDeadline: drainDeadline,
		logger:        logger.With().Str("component", "biller").Logger(),
	}
}

// Result reports whether the Biller had to give up on outstanding return
// slots when its drain deadline elapsed.
type Result struct {
	DrainIncomplete bool
}

// Run ranges over in until it closes, forwarding each claim onto out no
// faster than the configured rate. It closes out once in has closed and
// every forwarded claim's return slot has resolved, or the drain deadline
// elapses first.
func (b *Biller) Run(ctx context.Context, in <-chan model.Claim, out chan<- Submission) Result {
	defer close(out)

	for claim := range in {
		if err := b.limiter.Wait(ctx); err != nil {
			// context cancelled mid-wait; stop accepting new work.
			return b.drain()
		}

		s := &slot{id: uuid.New(), wg: &b.wg}
		b.wg.Add(1)

		select {
		case out <- Submission{Claim: claim, Handle: s}:
		case <-ctx.Done():
			b.wg.Done()
			return b.drain()
		}
	}

	return b.drain()
}

// drain waits for outstanding return slots to resolve, up to drainDeadline.
func (b *Biller) drain() Result {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return Result{}
	case <-time.After(b.drainDeadline):
		b.logger.Warn().Msg("drain deadline exceeded with outstanding return slots")
		return Result{DrainIncomplete: true}
	}
}
