package provider

import (
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
)

const (
	mockDefaultAge          = 40
	mockMedicalExamMinimum  = 250000
	mockSpreadBasisPoints   = 3001
	mockSpreadFloor         = 0.85
	mockTobaccoLoad         = 2.2
	mockFemaleDiscount      = 0.85
	mockAgeLoadPerYear      = 0.06
	mockTermLoadPerYear     = 0.03
	mockMinimumAgeFactor    = 0.6
	mockMinimumMonthlyValue = 5.0
)

// monthly rate per 1,000 of face amount at age 30
var mockBaseRates = map[domain.CoverageType]float64{
	domain.CoverageTermLife:      0.06,
	domain.CoverageWholeLife:     0.9,
	domain.CoverageUniversalLife: 0.55,
	domain.CoverageFinalExpense:  1.6,
}

// MockQuote synthesizes a stable quote for providers without live integration.
// The same provider and criteria always produce the same premium, since the
// spread is derived from a hash and age is taken at the effective date.
func MockQuote(cfg domain.ProviderConfig, criteria domain.QuoteCriteria) domain.Quote {
	age := mockDefaultAge
	if effective, err := time.Parse(domain.DateLayout, criteria.EffectiveDate); err == nil {
		if a, err := criteria.Age(effective); err == nil {
			age = a
		}
	}

	rate, ok := mockBaseRates[criteria.CoverageType]
	if !ok {
		rate = mockBaseRates[domain.CoverageWholeLife]
	}

	ageFactor := math.Max(mockMinimumAgeFactor, 1+float64(age-30)*mockAgeLoadPerYear)
	premium := float64(criteria.CoverageAmount) / 1000 * rate * ageFactor
	if criteria.Applicant.TobaccoUse {
		premium *= mockTobaccoLoad
	}
	if criteria.Applicant.Gender == domain.GenderFemale {
		premium *= mockFemaleDiscount
	}
	if criteria.CoverageType == domain.CoverageTermLife && criteria.TermLength > 10 {
		premium *= 1 + float64(criteria.TermLength-10)*mockTermLoadPerYear
	}

	spread := mockSpreadFloor + float64(xxhash.Sum64String(mockFingerprint(cfg.ID, criteria))%mockSpreadBasisPoints)/10000
	premium = math.Max(mockMinimumMonthlyValue, premium*spread)

	quote := domain.Quote{
		Provider:            cfg.Ref(),
		Type:                criteria.CoverageType,
		MonthlyPremium:      roundCents(premium),
		CoverageAmount:      criteria.CoverageAmount,
		MedicalExamRequired: criteria.CoverageAmount > mockMedicalExamMinimum && criteria.CoverageType != domain.CoverageFinalExpense,
		ConversionOption:    criteria.CoverageType == domain.CoverageTermLife,
	}
	if criteria.CoverageType == domain.CoverageTermLife && criteria.TermLength > 0 {
		term := criteria.TermLength
		quote.TermLength = &term
	}

	return quote
}

func mockFingerprint(providerID string, c domain.QuoteCriteria) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s|%s|%t|%s|%s|%s",
		providerID,
		c.CoverageType,
		c.CoverageAmount,
		c.TermLength,
		c.Applicant.DateOfBirth,
		c.Applicant.Gender,
		c.Applicant.TobaccoUse,
		c.Location.State,
		c.Location.ZipCode,
		c.EffectiveDate,
	)
}
