package provider

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

type standardRequest struct {
	Applicant standardApplicant `json:"applicant"`
	Product   standardProduct   `json:"product"`
	Location  standardLocation  `json:"location"`
}

type standardApplicant struct {
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	Tobacco     bool   `json:"tobacco"`
	HealthClass string `json:"healthClass,omitempty"`
}

type standardProduct struct {
	Type          string `json:"type"`
	FaceAmount    int64  `json:"faceAmount"`
	TermYears     int    `json:"termYears,omitempty"`
	PaymentMode   string `json:"paymentMode"`
	EffectiveDate string `json:"effectiveDate"`
}

type standardLocation struct {
	State   string `json:"state"`
	ZipCode string `json:"zip"`
	County  string `json:"county,omitempty"`
}

type standardResponse struct {
	Premium *struct {
		Monthly *float64 `json:"monthly"`
	} `json:"premium"`
	CoverageAmount *int64   `json:"coverageAmount"`
	TermYears      *int     `json:"termYears"`
	Deductible     *float64 `json:"deductible"`
	MedicalExam    bool     `json:"medicalExam"`
	Convertible    bool     `json:"convertible"`
}

// standardMapper speaks the flat JSON shape most carriers expose.
type standardMapper struct{}

func (standardMapper) BuildRequest(criteria domain.QuoteCriteria) any {
	return standardRequest{
		Applicant: standardApplicant{
			DateOfBirth: criteria.Applicant.DateOfBirth,
			Gender:      string(criteria.Applicant.Gender),
			Tobacco:     criteria.Applicant.TobaccoUse,
			HealthClass: criteria.Applicant.HealthClass,
		},
		Product: standardProduct{
			Type:          criteria.CoverageType.String(),
			FaceAmount:    criteria.CoverageAmount,
			TermYears:     criteria.TermLength,
			PaymentMode:   criteria.PaymentMode.String(),
			EffectiveDate: criteria.EffectiveDate,
		},
		Location: standardLocation{
			State:   criteria.Location.State,
			ZipCode: criteria.Location.ZipCode,
			County:  criteria.Location.County,
		},
	}
}

func (standardMapper) MapResponse(cfg domain.ProviderConfig, criteria domain.QuoteCriteria, body []byte) (domain.Quote, error) {
	var resp standardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.Premium == nil || resp.Premium.Monthly == nil {
		return domain.Quote{}, fmt.Errorf("missing required field premium.monthly")
	}
	if *resp.Premium.Monthly <= 0 {
		return domain.Quote{}, fmt.Errorf("premium.monthly must be > 0")
	}
	if resp.CoverageAmount == nil || *resp.CoverageAmount <= 0 {
		return domain.Quote{}, fmt.Errorf("missing required field coverageAmount")
	}

	quote := domain.Quote{
		Provider:            cfg.Ref(),
		Type:                criteria.CoverageType,
		MonthlyPremium:      roundCents(*resp.Premium.Monthly),
		CoverageAmount:      *resp.CoverageAmount,
		Deductible:          resp.Deductible,
		MedicalExamRequired: resp.MedicalExam,
		ConversionOption:    resp.Convertible,
	}
	if resp.TermYears != nil && *resp.TermYears > 0 {
		term := *resp.TermYears
		quote.TermLength = &term
	}

	return quote, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
