package domain

// ProviderStats holds running invocation counters for one provider.
type ProviderStats struct {
	ProviderID         string
	SuccessfulRequests int64
	FailedRequests     int64
	TotalRequests      int64
}

func (s ProviderStats) SuccessRate() float64 {
	if s.TotalRequests <= 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}
