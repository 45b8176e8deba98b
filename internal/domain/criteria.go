package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const (
	MinApplicantAge = 18
	MaxApplicantAge = 85
)

var (
	statePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	zipPattern   = regexp.MustCompile(`^\d{5}$`)

	termLengths = []int{10, 15, 20, 25, 30}
)

// CoverageType is the product line a quote is requested for.
type CoverageType string

const (
	CoverageTermLife      CoverageType = "term_life"
	CoverageWholeLife     CoverageType = "whole_life"
	CoverageUniversalLife CoverageType = "universal_life"
	CoverageFinalExpense  CoverageType = "final_expense"
)

func (c CoverageType) String() string { return string(c) }

func (c CoverageType) IsValid() bool {
	switch c {
	case CoverageTermLife, CoverageWholeLife, CoverageUniversalLife, CoverageFinalExpense:
		return true
	}
	return false
}

func ParseCoverageType(s string) (CoverageType, error) {
	ct := CoverageType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.IsValid() {
		return "", fmt.Errorf("%w: invalid coverage type %q", ErrValidation, s)
	}
	return ct, nil
}

// PaymentMode is how often the applicant pays the premium.
type PaymentMode string

const (
	PaymentMonthly    PaymentMode = "monthly"
	PaymentQuarterly  PaymentMode = "quarterly"
	PaymentSemiAnnual PaymentMode = "semi_annual"
	PaymentAnnual     PaymentMode = "annual"
)

func (m PaymentMode) String() string { return string(m) }

func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentMonthly, PaymentQuarterly, PaymentSemiAnnual, PaymentAnnual:
		return true
	}
	return false
}

// PaymentsPerYear returns the number of installments per policy year.
func (m PaymentMode) PaymentsPerYear() int {
	switch m {
	case PaymentQuarterly:
		return 4
	case PaymentSemiAnnual:
		return 2
	case PaymentAnnual:
		return 1
	default:
		return 12
	}
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

type Applicant struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      Gender `json:"gender"`
	TobaccoUse  bool   `json:"tobaccoUse"`
	HealthClass string `json:"healthClass,omitempty"`
}

type Location struct {
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	County  string `json:"county,omitempty"`
}

// QuoteCriteria is the normalized search submitted once and fanned out to every provider.
// It is persisted verbatim as the request_data of the audit row.
type QuoteCriteria struct {
	Applicant      Applicant    `json:"applicant"`
	CoverageType   CoverageType `json:"coverageType"`
	CoverageAmount int64        `json:"coverageAmount"`
	TermLength     int          `json:"termLength,omitempty"`
	PaymentMode    PaymentMode  `json:"paymentMode"`
	EffectiveDate  string       `json:"effectiveDate,omitempty"`
	Location       Location     `json:"location"`
}

// Normalize trims and canonicalizes fields. EffectiveDate defaults to today.
func (c *QuoteCriteria) Normalize(now time.Time) {
	c.Applicant.FirstName = strings.TrimSpace(c.Applicant.FirstName)
	c.Applicant.LastName = strings.TrimSpace(c.Applicant.LastName)
	c.Applicant.DateOfBirth = strings.TrimSpace(c.Applicant.DateOfBirth)
	c.Applicant.Gender = Gender(strings.ToLower(strings.TrimSpace(string(c.Applicant.Gender))))
	c.Applicant.HealthClass = strings.ToLower(strings.TrimSpace(c.Applicant.HealthClass))

	c.CoverageType = CoverageType(strings.ToLower(strings.TrimSpace(c.CoverageType.String())))
	c.PaymentMode = PaymentMode(strings.ToLower(strings.TrimSpace(c.PaymentMode.String())))
	if c.PaymentMode == "" {
		c.PaymentMode = PaymentMonthly
	}

	c.EffectiveDate = strings.TrimSpace(c.EffectiveDate)
	if c.EffectiveDate == "" {
		c.EffectiveDate = now.UTC().Format(DateLayout)
	}

	c.Location.State = strings.ToUpper(strings.TrimSpace(c.Location.State))
	c.Location.ZipCode = strings.TrimSpace(c.Location.ZipCode)
	c.Location.County = strings.TrimSpace(c.Location.County)
}

func (c *QuoteCriteria) Validate(now time.Time) error {
	if !c.CoverageType.IsValid() {
		if c.CoverageType == "" {
			return fmt.Errorf("%w: coverageType is required", ErrValidation)
		}
		return fmt.Errorf("%w: invalid coverage type %q", ErrValidation, c.CoverageType)
	}
	if c.CoverageAmount <= 0 {
		return fmt.Errorf("%w: coverageAmount is required and must be > 0", ErrValidation)
	}
	if c.CoverageType == CoverageTermLife {
		if c.TermLength == 0 {
			return fmt.Errorf("%w: termLength is required for %s", ErrValidation, CoverageTermLife)
		}
		if !slices.Contains(termLengths, c.TermLength) {
			return fmt.Errorf("%w: termLength must be one of %v (got %d)", ErrValidation, termLengths, c.TermLength)
		}
	} else if c.TermLength < 0 {
		return fmt.Errorf("%w: termLength must be >= 0", ErrValidation)
	}
	if !c.PaymentMode.IsValid() {
		return fmt.Errorf("%w: invalid payment mode %q", ErrValidation, c.PaymentMode)
	}

	if c.Applicant.DateOfBirth == "" {
		return fmt.Errorf("%w: applicant.dateOfBirth is required", ErrValidation)
	}
	age, err := c.Age(now)
	if err != nil {
		return err
	}
	if age < MinApplicantAge || age > MaxApplicantAge {
		return fmt.Errorf("%w: applicant age must be between %d and %d (got %d)", ErrValidation, MinApplicantAge, MaxApplicantAge, age)
	}
	if !c.Applicant.Gender.IsValid() {
		return fmt.Errorf("%w: applicant.gender must be male or female", ErrValidation)
	}

	effective, err := time.Parse(DateLayout, c.EffectiveDate)
	if err != nil {
		return fmt.Errorf("%w: effectiveDate must be YYYY-MM-DD", ErrValidation)
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if effective.Before(today) {
		return fmt.Errorf("%w: effectiveDate must not be in the past", ErrValidation)
	}

	if !statePattern.MatchString(c.Location.State) {
		return fmt.Errorf("%w: location.state must be a two-letter code", ErrValidation)
	}
	if !zipPattern.MatchString(c.Location.ZipCode) {
		return fmt.Errorf("%w: location.zipCode must be 5 digits", ErrValidation)
	}

	return nil
}

// Age returns the applicant's age in whole years at asOf.
func (c QuoteCriteria) Age(asOf time.Time) (int, error) {
	dob, err := time.Parse(DateLayout, c.Applicant.DateOfBirth)
	if err != nil {
		return 0, fmt.Errorf("%w: applicant.dateOfBirth must be YYYY-MM-DD", ErrValidation)
	}

	asOf = asOf.UTC()
	age := asOf.Year() - dob.Year()
	if asOf.Month() < dob.Month() || (asOf.Month() == dob.Month() && asOf.Day() < dob.Day()) {
		age--
	}
	return age, nil
}
