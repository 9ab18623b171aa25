package pipeline_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"claimflow/config"
	"claimflow/pipeline"
)

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func testConfig(path string, payers ...config.PayerConfig) config.Config {
	return config.Config{
		InputPath:      path,
		Rate:           1000,
		Payers:         payers,
		ReportInterval: 50 * time.Millisecond,
		DrainDeadline:  2 * time.Second,
		Seed:           1,
		ChannelBuffer:  16,
	}
}

func TestPipeline_Run_SingleClaimHappyPath(t *testing.T) {
	const claimLine = `{"claim_id":"c1","insurance":{"payer_id":"payer-a","patient_member_id":"m1"},"service_lines":[{"service_line_id":"sl-1","units":1,"unit_charge_amount":"42.00"}]}`
	path := writeInput(t, claimLine)

	cfg := testConfig(path, config.PayerConfig{ID: "payer-a", MinDelay: 0, MaxDelay: 0})

	var report bytes.Buffer
	logger := zerolog.New(io.Discard)

	code := pipeline.Run(context.Background(), cfg, logger, &report)

	require.Equal(t, pipeline.ExitClean, code)
	require.Contains(t, report.String(), "m1:")
}

func TestPipeline_Run_UnknownPayerSynthesizesRejection(t *testing.T) {
	const claimLine = `{"claim_id":"c1","insurance":{"payer_id":"does-not-exist","patient_member_id":"m1"},"service_lines":[{"service_line_id":"sl-1","units":1,"unit_charge_amount":"10.00"}]}`
	path := writeInput(t, claimLine)

	cfg := testConfig(path, config.PayerConfig{ID: "payer-a", MinDelay: 0, MaxDelay: 0})

	var report bytes.Buffer
	code := pipeline.Run(context.Background(), cfg, zerolog.New(io.Discard), &report)

	require.Equal(t, pipeline.ExitClean, code)
	require.Contains(t, report.String(), "not_allowed=10.00")
}

func TestPipeline_Run_DuplicateClaimIsFatal(t *testing.T) {
	const claimLine = `{"claim_id":"c1","insurance":{"payer_id":"payer-a","patient_member_id":"m1"},"service_lines":[{"service_line_id":"sl-1","units":1,"unit_charge_amount":"10.00"}]}`
	path := writeInput(t, claimLine, claimLine)

	cfg := testConfig(path, config.PayerConfig{ID: "payer-a", MinDelay: 0, MaxDelay: 0})
	cfg.DrainDeadline = 100 * time.Millisecond

	var report bytes.Buffer
	code := pipeline.Run(context.Background(), cfg, zerolog.New(io.Discard), &report)

	require.Equal(t, pipeline.ExitFatal, code)
}

func TestPipeline_Run_EmptyInputProducesZeroCountReport(t *testing.T) {
	path := writeInput(t)

	cfg := testConfig(path, config.PayerConfig{ID: "payer-a", MinDelay: 0, MaxDelay: 0})

	var report bytes.Buffer
	code := pipeline.Run(context.Background(), cfg, zerolog.New(io.Discard), &report)

	require.Equal(t, pipeline.ExitClean, code)
	require.Contains(t, report.String(), "(none)")
}

func TestPipeline_Run_ManyClaimsAtRate(t *testing.T) {
	lines := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		lines = append(lines, `{"claim_id":"c`+string(rune('a'+i))+`","insurance":{"payer_id":"payer-a","patient_member_id":"m1"},"service_lines":[{"service_line_id":"sl-1","units":1,"unit_charge_amount":"5.00"}]}`)
	}
	path := writeInput(t, lines...)

	cfg := testConfig(path, config.PayerConfig{ID: "payer-a", MinDelay: 0, MaxDelay: 0})
	cfg.Rate = 500

	var report bytes.Buffer
	code := pipeline.Run(context.Background(), cfg, zerolog.New(io.Discard), &report)

	require.Equal(t, pipeline.ExitClean, code)
}
