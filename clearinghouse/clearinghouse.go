// Package clearinghouse routes claims to payers, correlates remittances back
// to their originating return handles, and maintains the shared Ledger.
//
// Grounded on the teacher repo's Worker.processPayment health-gated
// default/fallback dispatch (api/worker/worker.go): there, a claim is routed
// to whichever of two processors is healthy; here the same "look up a route,
// dispatch, record the outcome" shape generalizes to an arbitrary number of
// payers keyed by payer_id, with the health check replaced by a routing-
// table presence check.
package clearinghouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"claimflow/biller"
	"claimflow/ledger"
	"claimflow/model"
)

// CancelFunc is the subset of context.CancelCauseFunc the Clearinghouse
// needs to tear the pipeline down on a fatal, whole-pipeline error.
type CancelFunc func(error)

// pendingEntry is what the Clearinghouse keeps per in-flight claim: the
// return handle to deliver the eventual remittance through, and the
// original claim, needed to validate the remittance's per-line invariant
// against each line's actual billed amount.
type pendingEntry struct {
	claim  model.Claim
	handle biller.ReturnHandle
}

// Clearinghouse is the routing and correlation hub between the Biller and
// the Payers.
type Clearinghouse struct {
	ledger *ledger.Ledger
	routes map[string]chan<- model.Claim
	cancel CancelFunc
	logger zerolog.Logger

	pendingMu sync.Mutex
	// pending is keyed by the return handle's opaque uuid, not claim_id, so
	// the handle really is independent correlation state rather than a
	// second index into the claim_id key space.
	pending map[uuid.UUID]pendingEntry
	// claimToHandle maps the externally-visible claim_id on an incoming
	// remittance to the uuid the pending table is actually keyed by.
	claimToHandle map[string]uuid.UUID
}

// New constructs a Clearinghouse over ledger, routing claims by payer_id
// according to routes (payer_id -> that payer's input channel). cancel is
// invoked with ledger.ErrDuplicateClaim if a duplicate claim_id is observed,
// tearing the whole pipeline down.
func New(ledg *ledger.Ledger, routes map[string]chan<- model.Claim, cancel CancelFunc, logger zerolog.Logger) *Clearinghouse {
	return &Clearinghouse{
		ledger:        ledg,
		routes:        routes,
		cancel:        cancel,
		logger:        logger.With().Str("component", "clearinghouse").Logger(),
		pending:       make(map[uuid.UUID]pendingEntry),
		claimToHandle: make(map[string]uuid.UUID),
	}
}

// PendingCount returns the number of claims currently awaiting a remittance.
// Per §8's invariant this equals the number of Open ClaimRecords.
func (c *Clearinghouse) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// RunSubmissions consumes Submissions from in until it closes, then closes
// every payer route channel once the pending table has drained. It is
// intended to run in its own goroutine.
func (c *Clearinghouse) RunSubmissions(ctx context.Context, in <-chan biller.Submission) {
	for sub := range in {
		c.handleSubmission(ctx, sub)
	}

	c.awaitPendingDrain(ctx)
	for payerID, route := range c.routes {
		c.logger.Debug().Str("payer_id", payerID).Msg("closing payer route")
		close(route)
	}
}

func (c *Clearinghouse) awaitPendingDrain(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.PendingCount() == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Clearinghouse) handleSubmission(ctx context.Context, sub biller.Submission) {
	claim := sub.Claim
	now := time.Now()

	if _, err := c.ledger.Insert(claim, now); err != nil {
		c.logger.Error().Err(err).Str("claim_id", claim.ClaimID).Msg("duplicate claim_id at ingest, tearing pipeline down")
		c.cancel(fmt.Errorf("clearinghouse: %w: %s", err, claim.ClaimID))
		return
	}

	route, ok := c.routes[claim.PayerID]
	if !ok {
		c.logger.Warn().Str("claim_id", claim.ClaimID).Str("payer_id", claim.PayerID).Msg("unknown payer, synthesizing rejection")
		remittance := model.ErrorRemittance(claim)
		c.ledger.Resolve(claim.ClaimID, remittance, time.Now())
		sub.Handle.Deliver(remittance)
		return
	}

	handleID := sub.Handle.ID()
	c.pendingMu.Lock()
	c.pending[handleID] = pendingEntry{claim: claim, handle: sub.Handle}
	c.claimToHandle[claim.ClaimID] = handleID
	c.pendingMu.Unlock()

	select {
	case route <- claim:
	case <-ctx.Done():
	}
}

// RunRemittances consumes remittances from in until it closes (the caller
// closes in once every payer has finished draining). It is intended to run
// in its own goroutine, concurrently with RunSubmissions.
func (c *Clearinghouse) RunRemittances(in <-chan model.Remittance) {
	for remittance := range in {
		c.handleRemittance(remittance)
	}
}

func (c *Clearinghouse) handleRemittance(remittance model.Remittance) {
	c.pendingMu.Lock()
	handleID, ok := c.claimToHandle[remittance.ClaimID]
	var entry pendingEntry
	if ok {
		entry, ok = c.pending[handleID]
		delete(c.claimToHandle, remittance.ClaimID)
		delete(c.pending, handleID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn().Str("claim_id", remittance.ClaimID).Msg("late or unknown remittance, dropping")
		return
	}

	if err := remittance.Validate(entry.claim); err != nil {
		c.logger.Warn().Err(err).Str("claim_id", remittance.ClaimID).Msg("remittance invariant violation, synthesizing error remittance")
		remittance = model.ErrorRemittance(entry.claim)
	}

	c.ledger.Resolve(remittance.ClaimID, remittance, time.Now())
	entry.handle.Deliver(remittance)
}
