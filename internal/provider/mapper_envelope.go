package provider

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/tidwall/gjson"
)

type envelopeRequest struct {
	Request envelopeRequestBody `json:"request"`
}

type envelopeRequestBody struct {
	Insured struct {
		BirthDate string `json:"birthDate"`
		Sex       string `json:"sex"`
		Smoker    bool   `json:"smoker"`
		State     string `json:"state"`
		Zip       string `json:"zip"`
		County    string `json:"county,omitempty"`
	} `json:"insured"`
	Plan struct {
		Product     string `json:"product"`
		Face        int64  `json:"face"`
		Term        int    `json:"term,omitempty"`
		Mode        string `json:"mode"`
		EffectiveOn string `json:"effectiveOn"`
	} `json:"plan"`
}

// envelopeMapper handles carriers that wrap results in a status envelope:
//
//	{"status":"ok","data":{"quotes":[{"annualPremium":612.0,"faceAmount":500000,...}]}}
//
// A quote may instead carry modalPremium, the installment for the requested
// payment mode (or the quote's own "mode"), which is converted to monthly.
type envelopeMapper struct{}

func (envelopeMapper) BuildRequest(criteria domain.QuoteCriteria) any {
	var req envelopeRequest
	body := &req.Request

	body.Insured.BirthDate = criteria.Applicant.DateOfBirth
	body.Insured.Sex = sexCode(criteria.Applicant.Gender)
	body.Insured.Smoker = criteria.Applicant.TobaccoUse
	body.Insured.State = criteria.Location.State
	body.Insured.Zip = criteria.Location.ZipCode
	body.Insured.County = criteria.Location.County

	body.Plan.Product = strings.ToUpper(criteria.CoverageType.String())
	body.Plan.Face = criteria.CoverageAmount
	body.Plan.Term = criteria.TermLength
	body.Plan.Mode = strings.ToUpper(criteria.PaymentMode.String())
	body.Plan.EffectiveOn = criteria.EffectiveDate

	return req
}

func (envelopeMapper) MapResponse(cfg domain.ProviderConfig, criteria domain.QuoteCriteria, body []byte) (domain.Quote, error) {
	if !gjson.ValidBytes(body) {
		return domain.Quote{}, fmt.Errorf("response is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	if status := doc.Get("status").String(); !strings.EqualFold(status, "ok") {
		return domain.Quote{}, fmt.Errorf("envelope status %q", status)
	}

	quote := doc.Get("data.quotes.0")
	if !quote.Exists() {
		return domain.Quote{}, fmt.Errorf("missing required field data.quotes")
	}

	monthly, err := envelopeMonthlyPremium(quote, criteria.PaymentMode)
	if err != nil {
		return domain.Quote{}, err
	}
	face := quote.Get("faceAmount")
	if !face.Exists() || face.Int() <= 0 {
		return domain.Quote{}, fmt.Errorf("missing required field faceAmount")
	}

	result := domain.Quote{
		Provider:            cfg.Ref(),
		Type:                criteria.CoverageType,
		MonthlyPremium:      monthly,
		CoverageAmount:      face.Int(),
		MedicalExamRequired: examRequired(quote.Get("exam")),
		ConversionOption:    quote.Get("conversion").Bool(),
	}
	if term := quote.Get("term"); term.Exists() && term.Int() > 0 {
		v := int(term.Int())
		result.TermLength = &v
	}
	if deductible := quote.Get("deductible"); deductible.Exists() && deductible.Type == gjson.Number {
		v := deductible.Float()
		result.Deductible = &v
	}

	return result, nil
}

// envelopeMonthlyPremium prefers modalPremium scaled by installments per year
// and falls back to annualPremium / 12.
func envelopeMonthlyPremium(quote gjson.Result, requested domain.PaymentMode) (float64, error) {
	if modal := quote.Get("modalPremium"); modal.Exists() && modal.Float() > 0 {
		mode := requested
		if raw := quote.Get("mode").String(); raw != "" {
			mode = domain.PaymentMode(strings.ToLower(strings.TrimSpace(raw)))
		}
		if !mode.IsValid() {
			return 0, fmt.Errorf("unknown payment mode %q", mode)
		}
		return roundCents(modal.Float() * float64(mode.PaymentsPerYear()) / 12), nil
	}

	annual := quote.Get("annualPremium")
	if !annual.Exists() || annual.Float() <= 0 {
		return 0, fmt.Errorf("missing required field annualPremium")
	}
	return roundCents(annual.Float() / 12), nil
}

func sexCode(g domain.Gender) string {
	switch g {
	case domain.GenderMale:
		return "M"
	case domain.GenderFemale:
		return "F"
	}
	return ""
}

// examRequired accepts both boolean and "required"/"waived" string encodings.
func examRequired(v gjson.Result) bool {
	if v.Type == gjson.String {
		return strings.EqualFold(v.String(), "required")
	}
	return v.Bool()
}
