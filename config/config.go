// Package config parses the command-line surface into a Config the
// pipeline orchestrator constructs once at startup. CLI parsing is named in
// the spec as an external collaborator, not a core concern, so this stays
// on the standard flag package rather than a subcommand framework — the
// teacher repo itself favors small, direct os.Getenv/flag-style config over
// anything heavier.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PayerConfig describes one payer's adjudication latency range.
type PayerConfig struct {
	ID       string
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Config is the fully parsed, validated set of run parameters.
type Config struct {
	InputPath      string
	Rate           float64
	Payers         []PayerConfig
	ReportInterval time.Duration
	DrainDeadline  time.Duration
	Seed           int64
	ChannelBuffer  int
}

// payerFlag accumulates repeatable --payer flags as a flag.Value.
type payerFlag struct {
	payers *[]PayerConfig
}

func (p *payerFlag) String() string {
	if p.payers == nil {
		return ""
	}
	parts := make([]string, 0, len(*p.payers))
	for _, pc := range *p.payers {
		parts = append(parts, fmt.Sprintf("%s:%d:%d", pc.ID, pc.MinDelay.Milliseconds(), pc.MaxDelay.Milliseconds()))
	}
	return strings.Join(parts, ",")
}

func (p *payerFlag) Set(value string) error {
	fields := strings.Split(value, ":")
	if len(fields) != 3 {
		return fmt.Errorf("--payer %q: want <id>:<min_ms>:<max_ms>", value)
	}
	id := strings.TrimSpace(fields[0])
	if id == "" {
		return fmt.Errorf("--payer %q: empty payer id", value)
	}
	minMS, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("--payer %q: invalid min_ms: %w", value, err)
	}
	maxMS, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("--payer %q: invalid max_ms: %w", value, err)
	}
	if minMS < 0 || maxMS < 0 {
		return fmt.Errorf("--payer %q: delays must be non-negative", value)
	}
	if minMS > maxMS {
		return fmt.Errorf("--payer %q: min_ms must be <= max_ms", value)
	}
	*p.payers = append(*p.payers, PayerConfig{
		ID:       id,
		MinDelay: time.Duration(minMS) * time.Millisecond,
		MaxDelay: time.Duration(maxMS) * time.Millisecond,
	})
	return nil
}

// Parse parses args (typically os.Args[1:]) into a validated Config.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("claimflow", flag.ContinueOnError)

	rate := fs.Float64("rate", 50, "claims/second submitted by the biller")
	reportInterval := fs.Int("report-interval", 15, "reporter cadence, in seconds")
	drainDeadline := fs.Int("drain-deadline", 30, "biller drain deadline, in seconds")
	seed := fs.Int64("seed", 1, "seed for the payer adjudication delay/coverage RNG")
	channelBuffer := fs.Int("buffer", 64, "capacity of each inter-stage channel")

	var payers []PayerConfig
	fs.Var(&payerFlag{payers: &payers}, "payer", "repeatable: <id>:<min_ms>:<max_ms>")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if fs.NArg() != 1 {
		return Config{}, fmt.Errorf("expected exactly one positional input file path, got %d", fs.NArg())
	}
	inputPath := fs.Arg(0)

	if *rate <= 0 {
		return Config{}, fmt.Errorf("--rate must be positive, got %v", *rate)
	}
	if len(payers) == 0 {
		return Config{}, fmt.Errorf("at least one --payer is required")
	}
	if *reportInterval <= 0 {
		return Config{}, fmt.Errorf("--report-interval must be positive, got %d", *reportInterval)
	}
	if *drainDeadline <= 0 {
		return Config{}, fmt.Errorf("--drain-deadline must be positive, got %d", *drainDeadline)
	}
	if *channelBuffer <= 0 {
		return Config{}, fmt.Errorf("--buffer must be positive, got %d", *channelBuffer)
	}

	seen := make(map[string]bool, len(payers))
	for _, p := range payers {
		if seen[p.ID] {
			return Config{}, fmt.Errorf("duplicate --payer id %q", p.ID)
		}
		seen[p.ID] = true
	}

	return Config{
		InputPath:      inputPath,
		Rate:           *rate,
		Payers:         payers,
		ReportInterval: time.Duration(*reportInterval) * time.Second,
		DrainDeadline:  time.Duration(*drainDeadline) * time.Second,
		Seed:           *seed,
		ChannelBuffer:  *channelBuffer,
	}, nil
}
