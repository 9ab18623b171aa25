// Package model holds the claim/remittance data model shared by every
// pipeline stage.
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Contact is optional patient contact information.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Patient carries the demographic fields the core needs; it does not
// validate medical-coding content (out of scope per spec).
type Patient struct {
	Name    string   `json:"name"`
	DOB     string   `json:"dob"`
	Gender  string   `json:"gender"`
	Contact *Contact `json:"contact,omitempty"`
}

// Party is opaque provenance (organization / rendering provider) carried
// through for completeness; no core invariant depends on its fields.
type Party struct {
	Name string `json:"name"`
	NPI  string `json:"npi,omitempty"`
}

// ServiceLine is one billed (or explicitly unbilled) line item on a claim.
type ServiceLine struct {
	ServiceLineID    string          `json:"service_line_id"`
	ProcedureCode    string          `json:"procedure_code"`
	Units            int             `json:"units"`
	UnitChargeAmount decimal.Decimal `json:"unit_charge_amount"`
	DoNotBill        bool            `json:"do_not_bill,omitempty"`
}

// BilledAmount is units x unit_charge_amount, or zero when DoNotBill is set.
func (s ServiceLine) BilledAmount() decimal.Decimal {
	if s.DoNotBill {
		return decimal.Zero
	}
	return s.UnitChargeAmount.Mul(decimal.NewFromInt(int64(s.Units)))
}

// Claim is immutable once constructed by the Reader.
type Claim struct {
	ClaimID           string
	PayerID           string
	PatientMemberID   string
	Patient           Patient
	Organization      Party
	RenderingProvider Party
	ServiceLines      []ServiceLine
}

// TotalBilled sums BilledAmount over every service line.
func (c Claim) TotalBilled() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.ServiceLines {
		total = total.Add(l.BilledAmount())
	}
	return total
}

// BillableLines returns the service lines that are not flagged do-not-bill,
// in order.
func (c Claim) BillableLines() []ServiceLine {
	out := make([]ServiceLine, 0, len(c.ServiceLines))
	for _, l := range c.ServiceLines {
		if !l.DoNotBill {
			out = append(out, l)
		}
	}
	return out
}

// RemittanceLine is the payer's allocation of one billed service line's
// amount across payer-paid and patient-responsibility buckets.
type RemittanceLine struct {
	ServiceLineID string
	PayerPaid     decimal.Decimal
	Copay         decimal.Decimal
	Coinsurance   decimal.Decimal
	Deductible    decimal.Decimal
	NotAllowed    decimal.Decimal
}

// Sum returns the total of all five buckets.
func (l RemittanceLine) Sum() decimal.Decimal {
	return l.PayerPaid.Add(l.Copay).Add(l.Coinsurance).Add(l.Deductible).Add(l.NotAllowed)
}

// PatientResponsibility returns copay+coinsurance+deductible (excludes
// payer_paid and not_allowed).
func (l RemittanceLine) PatientResponsibility() decimal.Decimal {
	return l.Copay.Add(l.Coinsurance).Add(l.Deductible)
}

// Validate checks the non-negativity and summation invariant for one line
// against its originating billed amount.
func (l RemittanceLine) Validate(billed decimal.Decimal) error {
	for name, amt := range map[string]decimal.Decimal{
		"payer_paid":  l.PayerPaid,
		"copay":       l.Copay,
		"coinsurance": l.Coinsurance,
		"deductible":  l.Deductible,
		"not_allowed": l.NotAllowed,
	} {
		if amt.IsNegative() {
			return fmt.Errorf("line %s: %s is negative: %s", l.ServiceLineID, name, amt)
		}
	}
	if sum := l.Sum(); !sum.Equal(billed) {
		return fmt.Errorf("line %s: buckets sum to %s, want %s", l.ServiceLineID, sum, billed)
	}
	return nil
}

// Remittance is a payer's response to a Claim.
type Remittance struct {
	ClaimID string
	Lines   []RemittanceLine
}

// TotalPayerPaid sums PayerPaid across every line.
func (r Remittance) TotalPayerPaid() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.PayerPaid)
	}
	return total
}

// TotalPatientResponsibility sums PatientResponsibility across every line.
func (r Remittance) TotalPatientResponsibility() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.PatientResponsibility())
	}
	return total
}

// TotalNotAllowed sums NotAllowed across every line.
func (r Remittance) TotalNotAllowed() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.NotAllowed)
	}
	return total
}

// Validate checks every line's invariant against the claim it was produced
// from. The claim's billable lines and the remittance's lines must match
// 1:1 by service_line_id.
func (r Remittance) Validate(claim Claim) error {
	if r.ClaimID != claim.ClaimID {
		return fmt.Errorf("remittance claim_id %q does not match claim %q", r.ClaimID, claim.ClaimID)
	}
	billed := make(map[string]decimal.Decimal, len(claim.ServiceLines))
	for _, l := range claim.BillableLines() {
		billed[l.ServiceLineID] = l.BilledAmount()
	}
	if len(r.Lines) != len(billed) {
		return fmt.Errorf("remittance has %d lines, claim has %d billable lines", len(r.Lines), len(billed))
	}
	for _, rl := range r.Lines {
		amt, ok := billed[rl.ServiceLineID]
		if !ok {
			return fmt.Errorf("remittance line %s does not correspond to a billable claim line", rl.ServiceLineID)
		}
		if err := rl.Validate(amt); err != nil {
			return err
		}
		delete(billed, rl.ServiceLineID)
	}
	return nil
}

// ErrorRemittance synthesizes the error-remittance shape used for unknown
// payers and invariant violations: every bucket zero except not_allowed,
// which absorbs the full billed amount of each billable line.
func ErrorRemittance(claim Claim) Remittance {
	lines := make([]RemittanceLine, 0, len(claim.ServiceLines))
	for _, l := range claim.BillableLines() {
		lines = append(lines, RemittanceLine{
			ServiceLineID: l.ServiceLineID,
			NotAllowed:    l.BilledAmount(),
		})
	}
	return Remittance{ClaimID: claim.ClaimID, Lines: lines}
}
