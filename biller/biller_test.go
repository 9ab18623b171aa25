package biller_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"claimflow/biller"
	"claimflow/model"
)

func TestBiller_Run_ForwardsAllClaims(t *testing.T) {
	b := biller.New(1000, time.Second, zerolog.New(io.Discard))

	in := make(chan model.Claim, 3)
	in <- model.Claim{ClaimID: "c1"}
	in <- model.Claim{ClaimID: "c2"}
	in <- model.Claim{ClaimID: "c3"}
	close(in)

	out := make(chan biller.Submission)
	resultCh := make(chan biller.Result, 1)
	go func() { resultCh <- b.Run(context.Background(), in, out) }()

	var submissions []biller.Submission
	for sub := range out {
		submissions = append(submissions, sub)
		sub.Handle.Deliver(model.Remittance{})
	}

	result := <-resultCh
	require.False(t, result.DrainIncomplete)
	require.Len(t, submissions, 3)
}

func TestBiller_Run_RespectsRateSpacing(t *testing.T) {
	const rate = 20.0 // 50ms between sends
	b := biller.New(rate, time.Second, zerolog.New(io.Discard))

	in := make(chan model.Claim, 4)
	for i := 0; i < 4; i++ {
		in <- model.Claim{ClaimID: "c"}
	}
	close(in)

	out := make(chan biller.Submission)
	go func() { b.Run(context.Background(), in, out) }()

	var timestamps []time.Time
	for sub := range out {
		timestamps = append(timestamps, time.Now())
		sub.Handle.Deliver(model.Remittance{})
	}

	require.Len(t, timestamps, 4)
	minSpacing := time.Duration(float64(time.Second)/rate) * 9 / 10
	for i := 1; i < len(timestamps); i++ {
		require.GreaterOrEqual(t, timestamps[i].Sub(timestamps[i-1]), minSpacing)
	}
}

func TestBiller_Run_DrainDeadlineExceeded(t *testing.T) {
	b := biller.New(1000, 20*time.Millisecond, zerolog.New(io.Discard))

	in := make(chan model.Claim, 1)
	in <- model.Claim{ClaimID: "c1"}
	close(in)

	out := make(chan biller.Submission)
	resultCh := make(chan biller.Result, 1)
	go func() { resultCh <- b.Run(context.Background(), in, out) }()

	// Receive the submission but never call Deliver, so the return slot
	// never resolves and the drain deadline must fire.
	<-out

	result := <-resultCh
	require.True(t, result.DrainIncomplete)
}
