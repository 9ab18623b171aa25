// Package payer simulates a single payer's adjudication of claims: a random
// latency followed by an allocation of each billed line's amount across
// payer-paid and patient-responsibility buckets.
//
// Grounded on the teacher repo's startHealthChecks ticker-driven background
// loop (api/worker/worker.go) for the "wait, then act" shape, and on
// go w.processPayment(req) for firing one goroutine per unit of work so a
// single claim's latency never blocks its siblings.
package payer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"claimflow/model"
)

// Payer adjudicates every claim routed to it on in, emitting a Remittance
// for each onto out.
type Payer struct {
	id       string
	minDelay time.Duration
	maxDelay time.Duration
	rng      *rand.Rand
	rngMu    sync.Mutex
	logger   zerolog.Logger
}

// New constructs a Payer for payerID whose adjudication latency is uniform
// in [minDelay, maxDelay]. seed fixes the sequence of random draws (latency
// and coverage ratio). Each claim's adjudication goroutine takes its draws
// from this one shared source, so with several claims in flight the
// assignment of draws to claims follows goroutine scheduling and is not
// reproducible across runs; a single claim's adjudication is.
func New(payerID string, minDelay, maxDelay time.Duration, seed int64, logger zerolog.Logger) *Payer {
	return &Payer{
		id:       payerID,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.With().Str("component", "payer").Str("payer_id", payerID).Logger(),
	}
}

// Run ranges over in until it closes, adjudicating each claim in its own
// goroutine and emitting the resulting Remittance onto out. It returns once
// every in-flight adjudication has completed, and does not close out itself
// (the caller fans multiple Payers' output into one shared channel and
// closes it once every Payer's Run has returned).
func (p *Payer) Run(ctx context.Context, in <-chan model.Claim, out chan<- model.Remittance) {
	var wg sync.WaitGroup
	for claim := range in {
		wg.Add(1)
		go func(claim model.Claim) {
			defer wg.Done()
			p.adjudicate(ctx, claim, out)
		}(claim)
	}
	wg.Wait()
}

func (p *Payer) adjudicate(ctx context.Context, claim model.Claim, out chan<- model.Remittance) {
	delay := p.randomDelay()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	remittance := model.Remittance{
		ClaimID: claim.ClaimID,
		Lines:   make([]model.RemittanceLine, 0, len(claim.ServiceLines)),
	}
	for _, line := range claim.BillableLines() {
		remittance.Lines = append(remittance.Lines, p.adjudicateLine(line))
	}

	select {
	case out <- remittance:
	case <-ctx.Done():
	}
}

func (p *Payer) randomDelay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	span := p.maxDelay - p.minDelay
	return p.minDelay + time.Duration(p.rng.Int63n(int64(span)))
}

// adjudicateLine implements the §4.4 reference policy: draw a coverage
// ratio, pay that share, split the remainder 50/30/20/0 across
// copay/coinsurance/deductible/not-allowed, then fold the rounding residual
// into whichever bucket is currently largest so the five buckets sum to
// the billed amount exactly.
func (p *Payer) adjudicateLine(line model.ServiceLine) model.RemittanceLine {
	billed := line.BilledAmount()
	if billed.IsZero() {
		return model.RemittanceLine{ServiceLineID: line.ServiceLineID}
	}

	p.rngMu.Lock()
	coverage := p.rng.Float64()
	p.rngMu.Unlock()

	payerPaid := billed.Mul(decimalFromFloat(coverage)).Round(2)
	if payerPaid.GreaterThan(billed) {
		payerPaid = billed
	}
	remainder := billed.Sub(payerPaid)

	copay := remainder.Mul(decimalFromFloat(0.5)).Round(2)
	coinsurance := remainder.Mul(decimalFromFloat(0.3)).Round(2)
	// Deductible absorbs whatever copay/coinsurance's independent rounding
	// left over, so the four buckets sum to remainder exactly and the five
	// buckets sum to billed exactly — no separate residual pass needed.
	// At small remainders (a few cents) copay and coinsurance can each round
	// up far enough to overshoot remainder, so claw the excess back out of
	// coinsurance then copay before it reaches deductible.
	deductible := remainder.Sub(copay).Sub(coinsurance)
	if deductible.IsNegative() {
		deficit := deductible.Neg()
		deductible = decimal.Zero
		if coinsurance.GreaterThanOrEqual(deficit) {
			coinsurance = coinsurance.Sub(deficit)
		} else {
			deficit = deficit.Sub(coinsurance)
			coinsurance = decimal.Zero
			copay = copay.Sub(deficit)
		}
	}

	return model.RemittanceLine{
		ServiceLineID: line.ServiceLineID,
		PayerPaid:     payerPaid,
		Copay:         copay,
		Coinsurance:   coinsurance,
		Deductible:    deductible,
	}
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
