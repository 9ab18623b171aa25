// Package pipeline wires the five stages together: Reader, Biller,
// Clearinghouse, Payers, and Reporter, sharing one cancellation context and
// one Ledger.
//
// Grounded on the teacher repo's main.go, which constructs the gateway and
// workers and owns their lifetimes from a single entrypoint function; here
// the same single-process wiring responsibility generalizes to five stage
// kinds and an arbitrary number of payers instead of two fixed processors.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"claimflow/biller"
	"claimflow/clearinghouse"
	"claimflow/config"
	"claimflow/ledger"
	"claimflow/model"
	"claimflow/payer"
	"claimflow/reader"
	"claimflow/reporter"
)

// ErrInterrupted is the cancellation cause used when an external interrupt
// (SIGINT/SIGTERM) tears the pipeline down.
var ErrInterrupted = errors.New("interrupted")

// Exit codes per the CLI surface.
const (
	ExitClean           = 0
	ExitFatal           = 1
	ExitDrainIncomplete = 2
)

// Run wires and drives one full pipeline run to completion, returning the
// process exit code.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger, report io.Writer) int {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn().Msg("received interrupt, shutting down")
			cancel(ErrInterrupted)
		case <-ctx.Done():
		}
	}()

	ledg := ledger.New()

	ingestCh := make(chan model.Claim, cfg.ChannelBuffer)
	submissionCh := make(chan biller.Submission, cfg.ChannelBuffer)
	remittanceCh := make(chan model.Remittance, cfg.ChannelBuffer)

	routes := make(map[string]chan model.Claim, len(cfg.Payers))
	routesForClearinghouse := make(map[string]chan<- model.Claim, len(cfg.Payers))
	for _, pc := range cfg.Payers {
		ch := make(chan model.Claim, cfg.ChannelBuffer)
		routes[pc.ID] = ch
		routesForClearinghouse[pc.ID] = ch
	}

	house := clearinghouse.New(ledg, routesForClearinghouse, func(err error) { cancel(err) }, logger)
	rdr := reader.New(cfg.InputPath, logger)
	bill := biller.New(cfg.Rate, cfg.DrainDeadline, logger)
	rpt := reporter.New(ledg, cfg.ReportInterval, report, logger)

	var readerErr error
	var billResult biller.Result

	var stages sync.WaitGroup
	stages.Add(1)
	go func() {
		defer stages.Done()
		readerErr = rdr.Run(ctx, ingestCh)
		if readerErr != nil {
			logger.Error().Err(readerErr).Msg("reader failed, cancelling pipeline")
			cancel(readerErr)
		}
	}()

	stages.Add(1)
	go func() {
		defer stages.Done()
		billResult = bill.Run(ctx, ingestCh, submissionCh)
	}()

	stages.Add(1)
	go func() {
		defer stages.Done()
		house.RunSubmissions(ctx, submissionCh)
	}()

	stages.Add(1)
	go func() {
		defer stages.Done()
		house.RunRemittances(remittanceCh)
	}()

	var payers sync.WaitGroup
	for i, pc := range cfg.Payers {
		p := payer.New(pc.ID, pc.MinDelay, pc.MaxDelay, cfg.Seed+int64(i), logger)
		route := routes[pc.ID]
		payers.Add(1)
		go func() {
			defer payers.Done()
			p.Run(ctx, route, remittanceCh)
		}()
	}
	go func() {
		payers.Wait()
		close(remittanceCh)
	}()

	done := make(chan struct{})
	go func() {
		stages.Wait()
		close(done)
	}()

	rpt.Run(ctx, done)
	<-done

	cause := context.Cause(ctx)
	switch {
	case cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, ErrInterrupted):
		return ExitFatal
	case billResult.DrainIncomplete:
		return ExitDrainIncomplete
	default:
		return ExitClean
	}
}
