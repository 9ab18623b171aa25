// Package reporter periodically snapshots the ledger and renders aging and
// per-patient financial summaries as plain tabular text.
//
// Grounded on the teacher repo's handlePaymentsSummary aggregation handler
// (api/gateway/gateway.go): there, stored payments are summed into a fixed
// summary shape on demand; here the same aggregate-and-render shape runs on
// a ticker instead of an HTTP request, against an in-memory ledger instead
// of Redis.
package reporter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"claimflow/ledger"
)

// agingBucketBounds are the lower bounds, in seconds, of each aging bucket;
// the last bucket has no upper bound.
var agingBucketBounds = []int{0, 60, 120, 180, 240}

// patientSummary accumulates one patient_member_id's closed-claim totals.
type patientSummary struct {
	patientMemberID string
	totalBilled     decimal.Decimal
	totalPayerPaid  decimal.Decimal
	copay           decimal.Decimal
	coinsurance     decimal.Decimal
	deductible      decimal.Decimal
	notAllowed      decimal.Decimal
}

// Reporter periodically renders aging and per-patient reports from a ledger.
type Reporter struct {
	ledger   *ledger.Ledger
	interval time.Duration
	out      io.Writer
	logger   zerolog.Logger
}

// New constructs a Reporter that ticks every interval, writing reports to
// out (os.Stdout in production).
func New(ledg *ledger.Ledger, interval time.Duration, out io.Writer, logger zerolog.Logger) *Reporter {
	return &Reporter{
		ledger:   ledg,
		interval: interval,
		out:      out,
		logger:   logger.With().Str("component", "reporter").Logger(),
	}
}

// Run ticks every r.interval, emitting a report each time, until ctx is
// cancelled or done is closed (signalling every upstream stage has
// finished). It always emits one final report before returning.
func (r *Reporter) Run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-done:
			r.report()
			return
		case <-ctx.Done():
			r.report()
			return
		}
	}
}

func (r *Reporter) report() {
	records := r.ledger.Snapshot()
	now := time.Now()

	aging := make([]int, len(agingBucketBounds))
	summaries := make(map[string]*patientSummary)

	for _, rec := range records {
		switch rec.Status() {
		case ledger.Open:
			aging[agingBucketIndex(now.Sub(rec.SubmittedAt))]++
		case ledger.Closed:
			s, ok := summaries[rec.PatientMemberID]
			if !ok {
				s = &patientSummary{patientMemberID: rec.PatientMemberID}
				summaries[rec.PatientMemberID] = s
			}
			s.totalBilled = s.totalBilled.Add(rec.TotalBilled)
			s.totalPayerPaid = s.totalPayerPaid.Add(rec.Remittance.TotalPayerPaid())
			for _, line := range rec.Remittance.Lines {
				s.copay = s.copay.Add(line.Copay)
				s.coinsurance = s.coinsurance.Add(line.Coinsurance)
				s.deductible = s.deductible.Add(line.Deductible)
			}
			s.notAllowed = s.notAllowed.Add(rec.Remittance.TotalNotAllowed())
		}
	}

	r.render(now, aging, summaries)
}

func agingBucketIndex(age time.Duration) int {
	seconds := int(age.Seconds())
	for i := len(agingBucketBounds) - 1; i >= 0; i-- {
		if seconds >= agingBucketBounds[i] {
			return i
		}
	}
	return 0
}

func (r *Reporter) render(now time.Time, aging []int, summaries map[string]*patientSummary) {
	fmt.Fprintf(r.out, "=== claimflow report @ %s ===\n", now.Format(time.RFC3339))

	fmt.Fprintln(r.out, "-- aging (open claims) --")
	for i, lower := range agingBucketBounds {
		label := fmt.Sprintf("%d+", lower)
		if i+1 < len(agingBucketBounds) {
			label = fmt.Sprintf("%d-%d", lower, agingBucketBounds[i+1])
		}
		fmt.Fprintf(r.out, "  [%ss): %d\n", label, aging[i])
	}

	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(r.out, "-- per-patient summary (closed claims) --")
	if len(ids) == 0 {
		fmt.Fprintln(r.out, "  (none)")
	}
	for _, id := range ids {
		s := summaries[id]
		fmt.Fprintf(r.out, "  %s: billed=%s payer_paid=%s copay=%s coinsurance=%s deductible=%s not_allowed=%s\n",
			s.patientMemberID, s.totalBilled.StringFixed(2), s.totalPayerPaid.StringFixed(2), s.copay.StringFixed(2),
			s.coinsurance.StringFixed(2), s.deductible.StringFixed(2), s.notAllowed.StringFixed(2))
	}
}
