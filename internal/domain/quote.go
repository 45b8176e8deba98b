package domain

// ProviderRef identifies the carrier behind a quote.
type ProviderRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Rating      string `json:"rating,omitempty"`
}

// Quote is the normalized provider offer. The aggregated slice of quotes is both
// the caller's response and the persisted response_data of the audit row.
type Quote struct {
	Provider            ProviderRef  `json:"provider"`
	Type                CoverageType `json:"type"`
	MonthlyPremium      float64      `json:"monthlyPremium"`
	CoverageAmount      int64        `json:"coverageAmount"`
	TermLength          *int         `json:"termLength,omitempty"`
	Deductible          *float64     `json:"deductible,omitempty"`
	MedicalExamRequired bool         `json:"medicalExamRequired"`
	ConversionOption    bool         `json:"conversionOption"`
}
