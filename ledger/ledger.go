// Package ledger holds the process-wide ClaimRecord store. The Clearinghouse
// is the sole writer; the Reporter (and tests) read consistent snapshots.
//
// Mirrors the teacher repo's healthMutex sync.RWMutex / processorHealth map
// pattern, generalized from a two-entry health cache to the full claim-state
// store.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"claimflow/model"
)

// Status is the derived lifecycle state of a ClaimRecord.
type Status int

const (
	// Open records have not yet received a remittance.
	Open Status = iota
	// Closed records have a remittance attached.
	Closed
)

func (s Status) String() string {
	if s == Closed {
		return "closed"
	}
	return "open"
}

// ClaimRecord tracks one claim's lifecycle inside the Ledger.
type ClaimRecord struct {
	ClaimID         string
	PatientMemberID string
	PayerID         string
	TotalBilled     decimal.Decimal
	SubmittedAt     time.Time
	ResolvedAt      time.Time // zero value while Open
	Remittance      model.Remittance
}

// Status derives Open/Closed from whether ResolvedAt has been set.
func (r ClaimRecord) Status() Status {
	if r.ResolvedAt.IsZero() {
		return Open
	}
	return Closed
}

// ErrDuplicateClaim is returned by Insert when claim_id already exists.
var ErrDuplicateClaim = errors.New("duplicate claim id")

// Ledger is the concurrency-safe claim-state store.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*ClaimRecord
}

// New constructs an empty Ledger.
func New() *Ledger {
	return &Ledger{records: make(map[string]*ClaimRecord)}
}

// Insert adds a new ClaimRecord for claim, failing if the claim_id already
// exists. Fatal per the spec's invariant: duplicate claim_id is a producer
// bug, not a recoverable per-claim error.
func (l *Ledger) Insert(claim model.Claim, submittedAt time.Time) (*ClaimRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[claim.ClaimID]; exists {
		return nil, ErrDuplicateClaim
	}
	rec := &ClaimRecord{
		ClaimID:         claim.ClaimID,
		PatientMemberID: claim.PatientMemberID,
		PayerID:         claim.PayerID,
		TotalBilled:     claim.TotalBilled(),
		SubmittedAt:     submittedAt,
	}
	l.records[claim.ClaimID] = rec
	return rec, nil
}

// Resolve attaches remittance to the record for claimID and marks it
// Closed. Returns false if no such record exists.
func (l *Ledger) Resolve(claimID string, remittance model.Remittance, resolvedAt time.Time) (*ClaimRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[claimID]
	if !ok {
		return nil, false
	}
	rec.Remittance = remittance
	rec.ResolvedAt = resolvedAt
	return rec, true
}

// Get returns a copy of the record for claimID, if present.
func (l *Ledger) Get(claimID string) (ClaimRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[claimID]
	if !ok {
		return ClaimRecord{}, false
	}
	return *rec, true
}

// Snapshot copies every record's current value under a read lock and
// releases the lock before returning, so a slow reader (the Reporter) never
// blocks the Clearinghouse's writes for longer than the copy itself takes.
func (l *Ledger) Snapshot() []ClaimRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ClaimRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	return out
}

// Len returns the number of records currently tracked.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
