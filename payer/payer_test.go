package payer_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"claimflow/model"
	"claimflow/payer"
)

func claimWithLines(units []int, charges []string) model.Claim {
	lines := make([]model.ServiceLine, len(units))
	for i := range units {
		amt, err := decimal.NewFromString(charges[i])
		if err != nil {
			panic(err)
		}
		lines[i] = model.ServiceLine{
			ServiceLineID:    string(rune('a' + i)),
			Units:            units[i],
			UnitChargeAmount: amt,
		}
	}
	return model.Claim{ClaimID: "c1", ServiceLines: lines}
}

func runOne(t *testing.T, p *payer.Payer, claim model.Claim) model.Remittance {
	t.Helper()
	in := make(chan model.Claim, 1)
	in <- claim
	close(in)

	out := make(chan model.Remittance, 1)
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), in, out)
		close(done)
	}()

	select {
	case r := <-out:
		<-done
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("payer did not produce a remittance in time")
		return model.Remittance{}
	}
}

func TestPayer_Adjudicate_SatisfiesSummationInvariant(t *testing.T) {
	p := payer.New("payer-a", 0, 0, 42, zerolog.New(io.Discard))

	for i := 0; i < 50; i++ {
		claim := claimWithLines([]int{3, 1}, []string{"17.33", "99.01"})
		claim.ClaimID = "c1"
		remittance := runOne(t, p, claim)
		require.NoError(t, remittance.Validate(claim))
	}
}

func TestPayer_Adjudicate_ZeroBilledLineIsAllZero(t *testing.T) {
	p := payer.New("payer-a", 0, 0, 1, zerolog.New(io.Discard))

	claim := claimWithLines([]int{1}, []string{"0.00"})
	remittance := runOne(t, p, claim)

	require.Len(t, remittance.Lines, 1)
	require.True(t, remittance.Lines[0].Sum().IsZero())
	require.NoError(t, remittance.Validate(claim))
}

func TestPayer_Adjudicate_DoNotBillLineProducesNoRemittanceLine(t *testing.T) {
	p := payer.New("payer-a", 0, 0, 1, zerolog.New(io.Discard))

	claim := claimWithLines([]int{1}, []string{"10.00"})
	claim.ServiceLines[0].DoNotBill = true
	remittance := runOne(t, p, claim)

	require.Empty(t, remittance.Lines)
}

func TestPayer_Adjudicate_ReproducibleWithSameSeed(t *testing.T) {
	claim := claimWithLines([]int{5, 2, 1}, []string{"12.34", "56.78", "9.99"})

	p1 := payer.New("payer-a", 0, 0, 7, zerolog.New(io.Discard))
	r1 := runOne(t, p1, claim)

	p2 := payer.New("payer-a", 0, 0, 7, zerolog.New(io.Discard))
	r2 := runOne(t, p2, claim)

	require.Equal(t, len(r1.Lines), len(r2.Lines))
	for i := range r1.Lines {
		require.True(t, r1.Lines[i].PayerPaid.Equal(r2.Lines[i].PayerPaid))
		require.True(t, r1.Lines[i].Copay.Equal(r2.Lines[i].Copay))
		require.True(t, r1.Lines[i].Coinsurance.Equal(r2.Lines[i].Coinsurance))
		require.True(t, r1.Lines[i].Deductible.Equal(r2.Lines[i].Deductible))
	}
}

func TestPayer_Adjudicate_RespectsDelayRange(t *testing.T) {
	p := payer.New("payer-a", 50*time.Millisecond, 60*time.Millisecond, 3, zerolog.New(io.Discard))

	claim := claimWithLines([]int{1}, []string{"10.00"})
	start := time.Now()
	runOne(t, p, claim)
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}
