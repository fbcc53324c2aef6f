package models

// VariantAnalytics is the service's per-variant result aggregate for one
// experiment.
type VariantAnalytics struct {
	VariantID   string `json:"variantId"`
	VariantName string `json:"variantName"`
	PromptName  string `json:"promptName"`

	TotalResults int `json:"totalResults"`
	SuccessCount int `json:"successCount"`

	// SuccessRate is SuccessCount/TotalResults, zero when no results exist.
	SuccessRate float64 `json:"successRate"`

	// AvgLatency is the mean recorded resolution latency in milliseconds.
	AvgLatency float64 `json:"avgLatency"`
}
