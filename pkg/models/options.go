package models

// DuplicateDetectionOptions tunes the batch resolver.
type DuplicateDetectionOptions struct {
	EnableFuzzyMatching bool    `json:"enable_fuzzy_matching"`
	EnableImageMatching bool    `json:"enable_image_matching"`
	AutoMatchThreshold  float64 `json:"auto_match_threshold" validate:"gte=0,lte=100"`
	ReviewThreshold     float64 `json:"review_threshold" validate:"gte=0,lte=100,ltefield=AutoMatchThreshold"`
	MileageTolerance    float64 `json:"mileage_tolerance" validate:"gt=0"`
	PriceTolerance      float64 `json:"price_tolerance" validate:"gt=0"`
}

// DefaultDuplicateDetectionOptions returns the stock batch settings.
func DefaultDuplicateDetectionOptions() DuplicateDetectionOptions {
	return DuplicateDetectionOptions{
		EnableFuzzyMatching: true,
		EnableImageMatching: false,
		AutoMatchThreshold:  85,
		ReviewThreshold:     70,
		MileageTolerance:    500,
		PriceTolerance:      500,
	}
}
