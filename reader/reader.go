// Package reader reads line-delimited claim JSON from a file and emits
// parsed claims onto a channel in source order.
package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"claimflow/model"
)

// ErrSourceIO is the sentinel wrapped into any fatal, non-EOF error reading
// the input source, so the orchestrator can distinguish it from a clean
// exhaustion of the source.
var ErrSourceIO = errors.New("source io error")

// wireContact mirrors the external JSON contact schema.
type wireContact struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// wirePatient mirrors the external JSON patient schema.
type wirePatient struct {
	Name    string       `json:"name"`
	DOB     string       `json:"dob"`
	Gender  string       `json:"gender"`
	Contact *wireContact `json:"contact"`
}

// wireParty mirrors organization / rendering_provider.
type wireParty struct {
	Name string `json:"name"`
	NPI  string `json:"npi"`
}

// wireInsurance mirrors the external JSON insurance schema.
type wireInsurance struct {
	PayerID         string `json:"payer_id"`
	PatientMemberID string `json:"patient_member_id"`
}

// wireServiceLine mirrors one entry of service_lines.
type wireServiceLine struct {
	ServiceLineID    string      `json:"service_line_id"`
	ProcedureCode    string      `json:"procedure_code"`
	Units            int         `json:"units"`
	UnitChargeAmount json.Number `json:"unit_charge_amount"`
	DoNotBill        bool        `json:"do_not_bill"`
}

// wireClaim mirrors the full external JSON claim record (§6 of the spec).
// Fields not declared here are ignored by encoding/json;
// place_of_service_code is decoded but not carried into model.Claim.
type wireClaim struct {
	ClaimID            string            `json:"claim_id"`
	PlaceOfServiceCode string            `json:"place_of_service_code"`
	Insurance          wireInsurance     `json:"insurance"`
	Patient            wirePatient       `json:"patient"`
	Organization       wireParty         `json:"organization"`
	RenderingProvider  wireParty         `json:"rendering_provider"`
	ServiceLines       []wireServiceLine `json:"service_lines"`
}

// Reader reads claim records from path and writes parsed Claims to out, in
// order, closing out when the source is exhausted. A non-EOF I/O error is
// returned as fatal; individual malformed lines are logged and skipped.
type Reader struct {
	path   string
	logger zerolog.Logger
}

// New constructs a Reader over path.
func New(path string, logger zerolog.Logger) *Reader {
	return &Reader{path: path, logger: logger.With().Str("component", "reader").Logger()}
}

// Run reads every line of the input file, emitting parsed claims onto out in
// order, and closes out unconditionally before returning. It respects ctx
// cancellation between lines (it will not block forever trying to send to a
// stalled downstream once cancellation fires).
func (r *Reader) Run(ctx context.Context, out chan<- model.Claim) error {
	defer close(out)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("reader: open %s: %w: %w", r.path, ErrSourceIO, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		claim, err := parseLine(line)
		if err != nil {
			r.logger.Warn().Err(err).Int("line", lineNo).Msg("skipping malformed claim record")
			continue
		}

		select {
		case out <- claim:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reader: read %s: %w: %w", r.path, ErrSourceIO, err)
	}
	return nil
}

func parseLine(line string) (model.Claim, error) {
	var w wireClaim
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return model.Claim{}, fmt.Errorf("invalid json: %w", err)
	}

	if w.ClaimID == "" {
		return model.Claim{}, fmt.Errorf("missing claim_id")
	}
	if w.Insurance.PayerID == "" {
		return model.Claim{}, fmt.Errorf("claim %s: missing insurance.payer_id", w.ClaimID)
	}
	if w.Insurance.PatientMemberID == "" {
		return model.Claim{}, fmt.Errorf("claim %s: missing insurance.patient_member_id", w.ClaimID)
	}
	if len(w.ServiceLines) == 0 {
		return model.Claim{}, fmt.Errorf("claim %s: no service lines", w.ClaimID)
	}

	lines := make([]model.ServiceLine, 0, len(w.ServiceLines))
	for i, wl := range w.ServiceLines {
		if wl.ServiceLineID == "" {
			return model.Claim{}, fmt.Errorf("claim %s: service line %d missing service_line_id", w.ClaimID, i)
		}
		amount, err := decimalFromJSONNumber(wl.UnitChargeAmount)
		if err != nil {
			return model.Claim{}, fmt.Errorf("claim %s: line %s: invalid unit_charge_amount: %w", w.ClaimID, wl.ServiceLineID, err)
		}
		lines = append(lines, model.ServiceLine{
			ServiceLineID:    wl.ServiceLineID,
			ProcedureCode:    wl.ProcedureCode,
			Units:            wl.Units,
			UnitChargeAmount: amount,
			DoNotBill:        wl.DoNotBill,
		})
	}

	var contact *model.Contact
	if w.Patient.Contact != nil {
		contact = &model.Contact{Phone: w.Patient.Contact.Phone, Email: w.Patient.Contact.Email}
	}

	return model.Claim{
		ClaimID:         w.ClaimID,
		PayerID:         w.Insurance.PayerID,
		PatientMemberID: w.Insurance.PatientMemberID,
		Patient: model.Patient{
			Name:    w.Patient.Name,
			DOB:     w.Patient.DOB,
			Gender:  w.Patient.Gender,
			Contact: contact,
		},
		Organization:      model.Party{Name: w.Organization.Name, NPI: w.Organization.NPI},
		RenderingProvider: model.Party{Name: w.RenderingProvider.Name, NPI: w.RenderingProvider.NPI},
		ServiceLines:      lines,
	}, nil
}

func decimalFromJSONNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(n.String())
}
